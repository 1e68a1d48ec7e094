package plugin

import "sync/atomic"

// Store 持有当前生效的 Conf，只支持整体替换，读者永远看不到部分更新。
type Store struct {
	current atomic.Pointer[Conf]
}

// NewStore 返回持有空配置的 Store。
func NewStore() *Store {
	s := &Store{}
	s.current.Store(&Conf{})
	return s
}

// Load 返回当前配置的副本。
func (s *Store) Load() Conf {
	return s.current.Load().Clone()
}

// Replace 以 conf 的副本整体替换当前配置。
func (s *Store) Replace(conf Conf) {
	next := conf.Clone()
	s.current.Store(&next)
}
