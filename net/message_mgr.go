package net

import (
	"errors"
	"sort"
	"sync"

	"github.com/lcx/flightrpc/message"
)

// MessageManager is the registry of services the dispatcher can route to.
type MessageManager struct {
	mu          sync.RWMutex
	PropInfoMap map[message.ServiceID]*MsgProtoInfo
}

// NewMessageManager creates an empty registry.
func NewMessageManager() *MessageManager {
	return &MessageManager{
		PropInfoMap: make(map[message.ServiceID]*MsgProtoInfo),
	}
}

// RegisterMsgInfo registers a service. A later registration for the same id replaces the earlier one.
func (m *MessageManager) RegisterMsgInfo(pi *MsgProtoInfo) error {
	if pi == nil || pi.MsgHandle == nil {
		return errors.New("RegisterMsgInfo invalid proto info")
	}
	if pi.Name == "" {
		pi.Name = pi.ServiceID.String()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PropInfoMap[pi.ServiceID] = pi
	return nil
}

// RegisterMsgHandle registers handle for id under its default name.
func (m *MessageManager) RegisterMsgHandle(id message.ServiceID, handle MsgHandle) error {
	return m.RegisterMsgInfo(&MsgProtoInfo{ServiceID: id, MsgHandle: handle})
}

// GetProtoInfo looks up a service.
func (m *MessageManager) GetProtoInfo(id message.ServiceID) (*MsgProtoInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pi, ok := m.PropInfoMap[id]
	return pi, ok
}

// ContainsMsg reports whether id is registered.
func (m *MessageManager) ContainsMsg(id message.ServiceID) bool {
	_, ok := m.GetProtoInfo(id)
	return ok
}

// GetAllMsgList returns the registered ids accepted by checkFunc, in ascending order.
func (m *MessageManager) GetAllMsgList(checkFunc func(pi *MsgProtoInfo) bool) []message.ServiceID {
	m.mu.RLock()
	ids := make([]message.ServiceID, 0, len(m.PropInfoMap))
	for id, pi := range m.PropInfoMap {
		if checkFunc != nil && !checkFunc(pi) {
			continue
		}
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
