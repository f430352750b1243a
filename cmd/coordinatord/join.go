package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

var errNotLeader = errors.New("coordinatord: this node is not the raft leader")

// requestJoin asks the coordinator reachable at leaderAdminAddr to add
// this node as a raft voter, mirroring the shape of AddVoter but issued
// from the joining side over the admin HTTP API instead of a direct Go
// call (the two processes don't share memory).
func requestJoin(leaderAdminAddr, serverID, bindAddr string) error {
	body, err := json.Marshal(joinRequest{ServerID: serverID, BindAddr: bindAddr})
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 10 * time.Second}
	url := fmt.Sprintf("http://%s/v1/join", leaderAdminAddr)
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errBody map[string]string
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		return fmt.Errorf("join rejected with status %d: %s", resp.StatusCode, errBody["error"])
	}
	return nil
}
