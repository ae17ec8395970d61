package weather

import "errors"

var (
	// ErrTransport is returned when the forecast API cannot be reached or answers
	// with a non-success status.
	ErrTransport = errors.New("transport error")

	// ErrParse is returned when the forecast response lacks the mandatory
	// current temperature or location name.
	ErrParse = errors.New("invalid response")

	// ErrPersistence is returned when the cache backend fails a read or write.
	ErrPersistence = errors.New("persistence error")

	// ErrReachabilityCheck marks a probe that could not build its check; the
	// network is then treated as not reachable.
	ErrReachabilityCheck = errors.New("reachability check failed")

	// ErrNoCachedRecord is returned when the cache is empty.
	ErrNoCachedRecord = errors.New("no cached weather record")

	// ErrInvalidRecord is returned when a record cannot be stored, such as
	// one without a city name.
	ErrInvalidRecord = errors.New("invalid weather record")
)
