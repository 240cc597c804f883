package xattr

import "strings"

// Verdict is the outcome of classifying an attribute key by namespace.
type Verdict int

const (
	// Allowed keys are stored in the sidecar.
	Allowed Verdict = iota
	// ForbiddenEPERM keys are rejected with "operation not permitted".
	ForbiddenEPERM
	// ForbiddenENOTSUP keys are rejected with "operation not supported".
	ForbiddenENOTSUP
)

// Recognized namespaces.
const (
	NamespaceUser     = "user"
	NamespaceSecurity = "security"
	NamespaceSystem   = "system"
	NamespaceTrusted  = "trusted"
)

func (v Verdict) String() string {
	switch v {
	case Allowed:
		return "allowed"
	case ForbiddenEPERM:
		return "forbidden(EPERM)"
	case ForbiddenENOTSUP:
		return "forbidden(ENOTSUP)"
	default:
		return "unknown"
	}
}

// Err returns the sentinel error for a forbidden verdict, nil otherwise.
func (v Verdict) Err() error {
	switch v {
	case Allowed:
		return nil
	case ForbiddenEPERM:
		return ErrNotPermitted
	default:
		return ErrNotSupported
	}
}

// Namespace returns the prefix before the first '.' of key. ok is false
// when the key has no separator at all.
func Namespace(key string) (ns string, ok bool) {
	i := strings.IndexByte(key, '.')
	if i < 0 {
		return "", false
	}
	return key[:i], true
}

// Classify decides whether key may be read or written through the store.
// Only the user namespace is backed by sidecars; security is refused
// outright and everything else, including keys with no namespace, is
// unsupported.
func Classify(key string) Verdict {
	ns, ok := Namespace(key)
	if !ok {
		return ForbiddenENOTSUP
	}
	switch ns {
	case NamespaceUser:
		return Allowed
	case NamespaceSecurity:
		return ForbiddenEPERM
	default:
		return ForbiddenENOTSUP
	}
}
