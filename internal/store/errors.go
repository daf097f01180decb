package store

import "github.com/nishisan-dev/redlet/internal/resperr"

func wrongType() error { return resperr.ErrWrongType }
