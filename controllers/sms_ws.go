package controller

import (
	"sync"
	"time"

	"fieldcrm/models"
	"fieldcrm/utils"

	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
)

// ThreadUpdate is what websocket listeners receive for every thread change
type ThreadUpdate struct {
	Type     string      `json:"type"`
	ThreadID uint        `json:"thread_id"`
	Message  interface{} `json:"message"`
	At       time.Time   `json:"at"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan ThreadUpdate
}

// SMSHub fans thread updates out to the websocket connections of one
// organization.
type SMSHub struct {
	mu      sync.RWMutex
	clients map[uint]map[*wsClient]struct{}
	logger  logrus.FieldLogger
}

func NewSMSHub(logger logrus.FieldLogger) *SMSHub {
	return &SMSHub{clients: map[uint]map[*wsClient]struct{}{}, logger: logger}
}

// ThreadUpdated never blocks; slow listeners miss updates.
func (h *SMSHub) ThreadUpdated(organizationID uint, threadID uint, message interface{}) {
	update := ThreadUpdate{Type: "thread.updated", ThreadID: threadID, Message: message, At: time.Now()}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[organizationID] {
		select {
		case client.send <- update:
		default:
		}
	}
}

func (h *SMSHub) register(organizationID uint, client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[organizationID] == nil {
		h.clients[organizationID] = map[*wsClient]struct{}{}
	}
	h.clients[organizationID][client] = struct{}{}
}

func (h *SMSHub) unregister(organizationID uint, client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients[organizationID], client)
	if len(h.clients[organizationID]) == 0 {
		delete(h.clients, organizationID)
	}
}

// Listeners counts open connections of an organization.
func (h *SMSHub) Listeners(organizationID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[organizationID])
}

// HandleSMSStream serves one websocket. The auth gate has already put the
// user in the connection locals.
func (h *SMSHub) HandleSMSStream(c *websocket.Conn) {
	defer c.Close()

	user, ok := c.Locals("user").(*models.User)
	if !ok {
		return
	}
	client := &wsClient{conn: c, send: make(chan ThreadUpdate, 16)}
	h.register(user.OrganizationID, client)
	defer h.unregister(user.OrganizationID, client)

	// reader: detects the client going away
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()
	for {
		select {
		case <-done:
			return
		case update := <-client.send:
			if err := c.WriteJSON(update); err != nil {
				utils.LogError(h.logger, "sms_ws_write", err, map[string]interface{}{"user_id": user.ID})
				return
			}
		case <-ping.C:
			if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
