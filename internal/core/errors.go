package core

import (
	"errors"
	"fmt"

	"github.com/kilupskalvis/blocksync/internal/models"
)

// RepositoryNotFoundError is returned when a repository key is not configured.
type RepositoryNotFoundError struct {
	Key string
}

func (e *RepositoryNotFoundError) Error() string {
	if e.Key == "" {
		return "no repository given and no default repository set"
	}
	return fmt.Sprintf("repository '%s' not found", e.Key)
}

// ItemNotFoundError is returned when an item is absent from the remote listing or
// from the local installation.
type ItemNotFoundError struct {
	Kind models.ItemKind
	Name string
	Repo string
}

func (e *ItemNotFoundError) Error() string {
	if e.Repo == "" {
		return fmt.Sprintf("%s '%s' not found", e.Kind, e.Name)
	}
	return fmt.Sprintf("%s '%s' not found in %s", e.Kind, e.Name, e.Repo)
}

// AlreadyExistsError is returned when an install finds an existing local entity.
type AlreadyExistsError struct {
	Kind      models.ItemKind
	Name      string
	MatchedBy models.MatchedBy
}

func (e *AlreadyExistsError) Error() string {
	if e.MatchedBy == models.MatchedByNone {
		return fmt.Sprintf("%s '%s' is already installed", e.Kind, e.Name)
	}
	return fmt.Sprintf("%s '%s' already exists (matched by %s); use update instead", e.Kind, e.Name, e.MatchedBy)
}

// NotInstalledError is returned when an update or removal finds nothing local.
type NotInstalledError struct {
	Kind models.ItemKind
	Name string
}

func (e *NotInstalledError) Error() string {
	return fmt.Sprintf("%s '%s' is not installed; use install instead", e.Kind, e.Name)
}

// LocalIOError is returned when writing to the local filesystem fails. Restored is
// set when a previous version of the file was put back.
type LocalIOError struct {
	Op       string
	Path     string
	Restored bool
	Err      error
}

func (e *LocalIOError) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
	if e.Restored {
		msg += " (previous version restored)"
	}
	return msg
}

func (e *LocalIOError) Unwrap() error { return e.Err }

// IsAlreadyExists reports whether err is an AlreadyExistsError.
func IsAlreadyExists(err error) bool {
	var ae *AlreadyExistsError
	return errors.As(err, &ae)
}

// IsNotInstalled reports whether err is a NotInstalledError.
func IsNotInstalled(err error) bool {
	var ne *NotInstalledError
	return errors.As(err, &ne)
}
