package handlers

import "github.com/pkg/errors"

var errInvalidLimit = errors.New("limit must be a positive integer")
