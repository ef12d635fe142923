package httpapi

import "github.com/google/uuid"

func newHTTPRunID() string { return uuid.NewString() }
