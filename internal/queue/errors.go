package queue

import "errors"

// ErrJobNotFound is returned when a job id does not exist.
var ErrJobNotFound = errors.New("job not found")

// ErrLeaseLost is returned when a worker attempts an ownership-guarded write
// for a job it no longer holds. The worker must stop processing the job.
var ErrLeaseLost = errors.New("job lease lost")

// ErrEmptyScript is returned when a job is enqueued with no raw text.
var ErrEmptyScript = errors.New("raw script text is empty")
