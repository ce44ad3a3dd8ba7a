package main

import (
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/status-im/connector-txqueue/services/connector/requests"
)

const maxRequestLineSize = 1 << 20

// readRequests parses one RPC request per line of r and delivers the
// resulting requests to out. Lines that do not parse are logged and skipped.
// out is closed when r is exhausted.
func readRequests(ctx context.Context, r io.Reader, out chan<- requests.ExternalRequest, logger *zap.Logger) error {
	defer close(out)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRequestLineSize)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		request, err := parseRequestLine(line)
		if err != nil {
			logger.Warn("skipping malformed request", zap.Error(err))
			continue
		}

		select {
		case out <- request:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return scanner.Err()
}

func parseRequestLine(line string) (requests.ExternalRequest, error) {
	rpcRequest, err := requests.RPCRequestFromJSON(line)
	if err != nil {
		return requests.ExternalRequest{}, err
	}
	if rpcRequest.RequestID == "" {
		rpcRequest.RequestID = uuid.NewString()
	}
	return requests.FromRPCRequest(rpcRequest)
}
