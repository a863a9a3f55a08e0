package service

import "errors"

// ErrSyncInProgress is returned when Sync, ForcePush, ForcePull or Reset is
// invoked while another run holds the engine.
var ErrSyncInProgress = errors.New("sync already in progress")
