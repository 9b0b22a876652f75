package rail

import "errors"

var ErrRailNotSupported = errors.New("payment rail is not supported")

const CodeStripe int32 = 1

type Registry struct {
	rails map[int32]Rail
}

func NewRegistry(rails ...Rail) *Registry {
	items := make(map[int32]Rail, len(rails))
	for _, r := range rails {
		items[r.Code()] = r
	}
	return &Registry{rails: items}
}

func (r *Registry) Get(code int32) (Rail, error) {
	item, ok := r.rails[code]
	if !ok {
		return nil, ErrRailNotSupported
	}
	return item, nil
}
