package store

import "errors"

// ErrAlreadySettled is returned by InsertTrade when the trades table's
// unique constraint rejects a row — the idempotency guard tripping on
// a re-delivered MatchedOrder. Callers treat it as success, not a
// failure to propagate.
var ErrAlreadySettled = errors.New("trade already settled")
