// Package repository defines the sentinel errors shared by the memory and
// sqlite implementations of the forge repository.
package repository

import "github.com/m-mizutani/goerr/v2"

var (
	ErrNotFound      = goerr.New("record not found")
	ErrAlreadyExists = goerr.New("record already exists")
)
