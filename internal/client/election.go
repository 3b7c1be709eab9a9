package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ElectMaster polls every configured storage node's get_master_namenode
// endpoint and returns the name node base URL the majority of them
// report, breaking ties by first occurrence in snBases order. This is
// the client-side quorum election of spec section 4.5: the client never
// asks a name node "are you master", it asks every storage node who
// they currently heartbeat and takes the mode of the answers.
func ElectMaster(ctx context.Context, httpClient *http.Client, snBases []string) (string, error) {
	if len(snBases) == 0 {
		return "", fmt.Errorf("no storage nodes configured for master election")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	type result struct {
		idx    int
		master string
		err    error
	}
	results := make(chan result, len(snBases))
	for i, base := range snBases {
		i, base := i, base
		go func() {
			m, err := queryMaster(ctx, httpClient, base)
			results <- result{idx: i, master: m, err: err}
		}()
	}

	answers := make([]string, len(snBases))
	for range snBases {
		r := <-results
		if r.err == nil {
			answers[r.idx] = r.master
		}
	}

	counts := map[string]int{}
	var order []string
	for _, m := range answers {
		if m == "" {
			continue
		}
		if counts[m] == 0 {
			order = append(order, m)
		}
		counts[m]++
	}

	if len(order) == 0 {
		return "", fmt.Errorf("no storage node reported a reachable master")
	}

	best := order[0]
	for _, m := range order[1:] {
		if counts[m] > counts[best] {
			best = m
		}
	}
	return best, nil
}

func queryMaster(ctx context.Context, httpClient *http.Client, base string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/get_master_namenode", nil)
	if err != nil {
		return "", err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
