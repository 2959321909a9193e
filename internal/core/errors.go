package core

import "errors"

// ErrFatal marks errors that abort a run: catalogue failures and derived
// datasets that cannot be indexed.
var ErrFatal = errors.New("fatal")
