package plugins

import (
	"github.com/danmuck/connprov/internal/connprov"
	"github.com/danmuck/connprov/internal/localipc"
	"github.com/danmuck/connprov/internal/tcp"
)

func init() {
	Register(Plugin{Name: tcp.Name, Construct: func(info connprov.ConstructInfo) (connprov.Provider, error) {
		p, err := tcp.Construct(info)
		if err != nil {
			return nil, err
		}
		return p, nil
	}})
	Register(Plugin{Name: localipc.Name, Construct: func(info connprov.ConstructInfo) (connprov.Provider, error) {
		p, err := localipc.Construct(info)
		if err != nil {
			return nil, err
		}
		return p, nil
	}})
}
