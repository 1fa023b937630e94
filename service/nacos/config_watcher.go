package nacos

import (
	"sync"

	"GreenChat/logger"

	"github.com/nacos-group/nacos-sdk-go/v2/clients/config_client"
	"github.com/nacos-group/nacos-sdk-go/v2/vo"
	"go.uber.org/zap"
)

// Source is one remote config document: fetched once at start, then watched.
type Source struct {
	cli    config_client.IConfigClient
	dataID string
	group  string
	log    *zap.Logger

	mu      sync.RWMutex
	current string
}

func NewSource(cli config_client.IConfigClient, dataID, group string) *Source {
	c := Config{DataID: dataID, Group: group}
	c.norm()
	return &Source{cli: cli, dataID: c.DataID, group: c.Group, log: logger.Named("nacos")}
}

// Load fetches the document and remembers it.
func (s *Source) Load() (string, error) {
	content, err := s.cli.GetConfig(vo.ConfigParam{DataId: s.dataID, Group: s.group})
	if err != nil {
		return "", err
	}
	s.set(content)
	return content, nil
}

// Watch calls onChange with every new version of the document.
func (s *Source) Watch(onChange func(data string)) error {
	return s.cli.ListenConfig(vo.ConfigParam{
		DataId: s.dataID,
		Group:  s.group,
		OnChange: func(_, _, dataID, data string) {
			s.log.Info("remote config changed", zap.String("data_id", dataID), zap.Int("bytes", len(data)))
			s.set(data)
			onChange(data)
		},
	})
}

func (s *Source) Current() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *Source) Close() error {
	err := s.cli.CancelListenConfig(vo.ConfigParam{DataId: s.dataID, Group: s.group})
	s.cli.CloseClient()
	return err
}

func (s *Source) set(data string) {
	s.mu.Lock()
	s.current = data
	s.mu.Unlock()
}
