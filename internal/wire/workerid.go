package wire

import (
	"strings"

	"github.com/purepool/purepool/pkg/errors"
)

// DefaultWorker is the worker name used when the client omits one.
const DefaultWorker = "Default"

// ErrInvalidWorkerID is returned when a worker identifier has no address part.
var ErrInvalidWorkerID = errors.New(errors.ErrorTypeValidation, "parse_worker_id", "invalid worker id")

// WorkerID is the parsed form of the client's "address/worker/email"
// identifier. Only the address is mandatory.
type WorkerID struct {
	Address string
	Worker  string
	Email   string
}

// ParseWorkerID splits a raw worker identifier. A missing or empty worker
// part falls back to DefaultWorker; the email part is optional and kept
// only for operator contact.
func ParseWorkerID(raw string) (*WorkerID, error) {
	parts := strings.Split(raw, "/")

	id := &WorkerID{
		Address: parts[0],
		Worker:  DefaultWorker,
	}

	if id.Address == "" {
		return nil, ErrInvalidWorkerID
	}

	if len(parts) > 1 && parts[1] != "" {
		id.Worker = parts[1]
	}

	if len(parts) > 2 {
		id.Email = parts[2]
	}

	return id, nil
}

// String re-assembles the identifier in its wire form.
func (w *WorkerID) String() string {
	if w.Email != "" {
		return w.Address + "/" + w.Worker + "/" + w.Email
	}
	return w.Address + "/" + w.Worker
}
