package did

import "errors"

var ErrMalformed = errors.New("malformed did")
