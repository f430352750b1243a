package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cuemby/hyperfold/pkg/log"
	"github.com/cuemby/hyperfold/pkg/types"
)

// pollInterval governs how often coordinatorClient checks the coordinator
// for a newer configuration or checkpoint number. The admin API has no
// streaming transport, so push delivery becomes poll-and-diff here.
const pollInterval = 500 * time.Millisecond

// coordinatorClient satisfies pkg/daemonlink.Coordinator over the admin
// HTTP API of a separate coordinatord process, converting its
// request/response calls into the condition-variable-shaped channels a
// Link expects.
type coordinatorClient struct {
	baseURL string
	http    *http.Client

	mu         sync.Mutex
	lastConfig uint64
	lastCheck  uint64

	configCh chan uint64
	checkCh  chan uint64
	stopCh   chan struct{}
}

func newCoordinatorClient(addr string) *coordinatorClient {
	c := &coordinatorClient{
		baseURL:  fmt.Sprintf("http://%s", addr),
		http:     &http.Client{Timeout: 5 * time.Second},
		configCh: make(chan uint64, 1),
		checkCh:  make(chan uint64, 1),
		stopCh:   make(chan struct{}),
	}
	go c.pollLoop()
	return c
}

func (c *coordinatorClient) pollLoop() {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	logger := log.WithComponent("storaged.coordinator_client")
	for {
		select {
		case <-ticker.C:
			cfg := c.Configuration()
			if cfg != nil {
				c.mu.Lock()
				newer := cfg.Version > c.lastConfig
				if newer {
					c.lastConfig = cfg.Version
				}
				c.mu.Unlock()
				if newer {
					select {
					case c.configCh <- cfg.Version:
					default:
					}
				}
			}

			number, err := c.fetchCheckpoint()
			if err != nil {
				logger.Warn().Err(err).Msg("checkpoint poll failed")
				continue
			}
			c.mu.Lock()
			newer := number > c.lastCheck
			if newer {
				c.lastCheck = number
			}
			c.mu.Unlock()
			if newer {
				select {
				case c.checkCh <- number:
				default:
				}
			}
		case <-c.stopCh:
			return
		}
	}
}

func (c *coordinatorClient) get(path string, out interface{}) error {
	resp, err := c.http.Get(c.baseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("coordinator returned status %d for %s", resp.StatusCode, path)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *coordinatorClient) post(path string, req, out interface{}) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	resp, err := c.http.Post(c.baseURL+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var errBody map[string]string
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		return fmt.Errorf("coordinator rejected %s with status %d: %s", path, resp.StatusCode, errBody["error"])
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *coordinatorClient) Configuration() *types.Configuration {
	var cfg types.Configuration
	if err := c.get("/v1/configuration", &cfg); err != nil {
		return nil
	}
	return &cfg
}

func (c *coordinatorClient) fetchCheckpoint() (uint64, error) {
	var out struct {
		Checkpoint uint64 `json:"checkpoint"`
	}
	if err := c.get("/v1/checkpoint", &out); err != nil {
		return 0, err
	}
	return out.Checkpoint, nil
}

func (c *coordinatorClient) SubscribeConfig() <-chan uint64 {
	return c.configCh
}

func (c *coordinatorClient) SubscribeCheckpoint() <-chan uint64 {
	return c.checkCh
}

type returnCodeResponse struct {
	Code types.ReturnCode `json:"code"`
}

func (c *coordinatorClient) ServerOnline(id types.ServerID, bindTo string) (types.ReturnCode, error) {
	var out returnCodeResponse
	err := c.post("/v1/server-online", map[string]interface{}{"server_id": id, "bind_to": bindTo}, &out)
	return out.Code, err
}

func (c *coordinatorClient) ServerSuspect(id types.ServerID) (types.ReturnCode, error) {
	var out returnCodeResponse
	err := c.post("/v1/server-suspect", map[string]interface{}{"server_id": id}, &out)
	return out.Code, err
}

func (c *coordinatorClient) ConfigAck(server types.ServerID, version uint64) (types.ReturnCode, error) {
	var out returnCodeResponse
	err := c.post("/v1/config-ack", map[string]interface{}{"server_id": server, "version": version}, &out)
	return out.Code, err
}

func (c *coordinatorClient) ConfigStable(server types.ServerID, version uint64) (types.ReturnCode, error) {
	var out returnCodeResponse
	err := c.post("/v1/config-stable", map[string]interface{}{"server_id": server, "version": version}, &out)
	return out.Code, err
}

func (c *coordinatorClient) CheckpointStable(server types.ServerID, configVersion, checkpointNumber uint64) (types.ReturnCode, error) {
	var out returnCodeResponse
	err := c.post("/v1/checkpoint-stable", map[string]interface{}{
		"server_id":         server,
		"config_version":    configVersion,
		"checkpoint_number": checkpointNumber,
	}, &out)
	return out.Code, err
}

func (c *coordinatorClient) TransferGoLive(version uint64, transferID types.TransferID) (types.ReturnCode, error) {
	var out returnCodeResponse
	err := c.post("/v1/transfer-go-live", map[string]interface{}{"version": version, "transfer_id": transferID}, &out)
	return out.Code, err
}

func (c *coordinatorClient) TransferComplete(version uint64, transferID types.TransferID) (types.ReturnCode, error) {
	var out returnCodeResponse
	err := c.post("/v1/transfer-complete", map[string]interface{}{"version": version, "transfer_id": transferID}, &out)
	return out.Code, err
}
