package loopop

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/arthur-debert/loopop/pkg/loopop/config"
	"github.com/arthur-debert/loopop/pkg/loopop/core"
)

// IDGenerator builds an operation ID from the operation kind and the thing
// it works on (a host, a path)
type IDGenerator func(kind, subject string) core.OperationID

// NewIDGenerator returns the generator for one of the config.IDSchemes. An
// empty scheme means config.IDSchemeUUID. Counters are per generator, so two
// runtimes never share a sequence.
//
//	uuid       reachability-6f1c2b9e-...   unique across processes
//	sequence   reachability-3              stable in tests and logs
//	hash       reachability-a3f9c2d1-3     same prefix for the same subject
//	timestamp  reachability-20261017T101500.123-3
func NewIDGenerator(scheme string) (IDGenerator, error) {
	var seq atomic.Uint64

	switch scheme {
	case "", config.IDSchemeUUID:
		return func(kind, _ string) core.OperationID {
			return core.OperationID(kind + "-" + uuid.NewString())
		}, nil
	case config.IDSchemeSequence:
		return func(kind, _ string) core.OperationID {
			return core.OperationID(fmt.Sprintf("%s-%d", kind, seq.Add(1)))
		}, nil
	case config.IDSchemeHash:
		return func(kind, subject string) core.OperationID {
			sum := sha256.Sum256([]byte(subject))
			return core.OperationID(fmt.Sprintf("%s-%s-%d", kind, hex.EncodeToString(sum[:4]), seq.Add(1)))
		}, nil
	case config.IDSchemeTimestamp:
		return func(kind, _ string) core.OperationID {
			stamp := time.Now().UTC().Format("20060102T150405.000")
			return core.OperationID(fmt.Sprintf("%s-%s-%d", kind, stamp, seq.Add(1)))
		}, nil
	}
	return nil, fmt.Errorf("unknown operation id scheme %q", scheme)
}
