package scheduler

import "errors"

// ErrTaskBusy indicates the task cannot be triggered right now: it is
// paused, already queued or running, or a trigger raced with the
// scheduling loop.
var ErrTaskBusy = errors.New("task is paused or already queued or running")
