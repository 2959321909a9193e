package jobscript

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/template"
	"time"
)

// DefaultTemplate is a PBS script running the ARD pipeline over a work list.
const DefaultTemplate = `#!/bin/bash
#PBS -P {{.Project}}
#PBS -q {{.Queue}}
#PBS -l walltime={{walltime .WalltimeHours}}
#PBS -l ncpus={{.CPUs}}
#PBS -l mem={{.MemoryGB}}GB
#PBS -l jobfs={{.JobFSGB}}GB
#PBS -l wd
#PBS -W umask=017
#PBS -N {{.Name}}
{{- if .Storage}}
#PBS -l storage={{.Storage}}
{{- end}}

# {{.Items}} scenes on {{.Nodes}} node(s)
{{- range .Env}}
export {{.}}
{{- end}}

{{.Command}} \
  --level1-list {{quote .WorkList}} \
  --workdir {{quote .OutputDir}} \
  --nodes {{.Nodes}} \
  --workers {{.Workers}}
`

// Job describes one batch submission.
type Job struct {
	Name          string
	Project       string
	Queue         string
	Storage       string
	WalltimeHours float64
	Workers       int
	CPUsPerNode   int
	MemoryGB      int
	JobFSGB       int
	Nodes         int
	Items         int
	WorkList      string
	OutputDir     string
	Command       string
	Env           []string
}

// CPUs is the total CPU request.
func (j Job) CPUs() int { return j.Nodes * j.CPUsPerNode }

func (j Job) validate() error {
	var missing []string
	for name, v := range map[string]string{"project": j.Project, "queue": j.Queue, "work list": j.WorkList, "output dir": j.OutputDir, "command": j.Command} {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("job missing %s", strings.Join(missing, ", "))
	}
	if j.Nodes < 1 || j.CPUsPerNode < 1 {
		return errors.New("job needs at least one node and one cpu per node")
	}
	return nil
}

var funcs = template.FuncMap{
	"walltime": formatWalltime,
	"quote":    func(s string) string { return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'" },
}

// Emitter renders jobs through a text/template.
type Emitter struct {
	tmpl *template.Template
}

// NewEmitter parses text, or DefaultTemplate when text is empty.
func NewEmitter(text string) (*Emitter, error) {
	if strings.TrimSpace(text) == "" {
		text = DefaultTemplate
	}
	tmpl, err := template.New("job").Funcs(funcs).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse job template: %w", err)
	}
	return &Emitter{tmpl: tmpl}, nil
}

// LoadEmitter reads a template file; an empty path selects DefaultTemplate.
func LoadEmitter(path string) (*Emitter, error) {
	if path == "" {
		return NewEmitter("")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read job template: %w", err)
	}
	return NewEmitter(string(b))
}

// Emit writes the rendered job script.
func (e *Emitter) Emit(w io.Writer, job Job) error {
	if err := job.validate(); err != nil {
		return err
	}
	if job.Name == "" {
		job.Name = "sceneselect"
	}
	if err := e.tmpl.Execute(w, job); err != nil {
		return fmt.Errorf("render job script: %w", err)
	}
	return nil
}

func formatWalltime(hours float64) string {
	if hours <= 0 {
		hours = 1
	}
	d := time.Duration(hours * float64(time.Hour)).Round(time.Minute)
	return fmt.Sprintf("%02d:%02d:00", int(d.Hours()), int(d.Minutes())%60)
}
