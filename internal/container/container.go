// Package container traces a pid to the container that owns it.
package container

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	legacy "github.com/bearslyricattack/CompliK/portkill/pkg/logger/legacy"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	runtimeapi "k8s.io/cri-api/pkg/apis/runtime/v1"
)

/*
PID
  -> /proc/{PID}/cgroup
  -> container id (64 hex chars)
  -> CRI ContainerStatus(id) on the runtime socket
  -> container name
*/

var cgroupPatterns = []*regexp.Regexp{
	regexp.MustCompile(`cri-containerd-([0-9a-f]{64})\.scope`),
	regexp.MustCompile(`crio-([0-9a-f]{64})\.scope`),
	regexp.MustCompile(`libpod-([0-9a-f]{64})\.scope`),
	regexp.MustCompile(`docker-([0-9a-f]{64})\.scope`),
	regexp.MustCompile(`/docker/([0-9a-f]{64})`),
	regexp.MustCompile(`/kubepods[^\s]*/([0-9a-f]{64})$`),
}

const shortIDLen = 12

// ParseCgroup extracts a container id from the content of a cgroup file.
func ParseCgroup(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		for _, re := range cgroupPatterns {
			if m := re.FindStringSubmatch(line); m != nil {
				return m[1]
			}
		}
	}
	return ""
}

// Resolver looks up container ids from procfs and names over CRI.
type Resolver struct {
	procRoot string
	endpoint string
	timeout  time.Duration

	mu     sync.Mutex
	client runtimeapi.RuntimeServiceClient
	conn   *grpc.ClientConn
	names  map[string]string
}

// NewResolver creates a resolver talking to the CRI runtime at endpoint.
func NewResolver(endpoint string) *Resolver {
	if endpoint != "" && !strings.Contains(endpoint, "://") {
		endpoint = "unix://" + endpoint
	}
	return &Resolver{
		procRoot: "/proc",
		endpoint: endpoint,
		timeout:  2 * time.Second,
		names:    make(map[string]string),
	}
}

// WithProcRoot points the resolver at another procfs mount.
func (r *Resolver) WithProcRoot(root string) *Resolver {
	r.procRoot = root
	return r
}

// WithClient injects a CRI client, used by tests.
func (r *Resolver) WithClient(client runtimeapi.RuntimeServiceClient) *Resolver {
	r.client = client
	return r
}

// ContainerID returns the id of the container running pid, or "".
func (r *Resolver) ContainerID(pid int) string {
	data, err := os.ReadFile(filepath.Join(r.procRoot, strconv.Itoa(pid), "cgroup"))
	if err != nil {
		return ""
	}
	return ParseCgroup(string(data))
}

// Name asks the runtime for the container name. Lookups are cached,
// failures return "" and are retried on the next call.
func (r *Resolver) Name(ctx context.Context, id string) string {
	if id == "" {
		return ""
	}
	r.mu.Lock()
	if name, ok := r.names[id]; ok {
		r.mu.Unlock()
		return name
	}
	client, err := r.runtimeClient()
	r.mu.Unlock()
	if err != nil {
		legacy.L.WithFields(logrus.Fields{"endpoint": r.endpoint, "error": err}).Debug("Container runtime unavailable")
		return ""
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	resp, err := client.ContainerStatus(ctx, &runtimeapi.ContainerStatusRequest{ContainerId: id})
	if err != nil {
		legacy.L.WithFields(logrus.Fields{"container_id": id, "error": err}).Debug("ContainerStatus failed")
		return ""
	}
	name := ""
	if resp.GetStatus().GetMetadata() != nil {
		name = resp.GetStatus().GetMetadata().GetName()
	}
	if name == "" {
		return ""
	}

	r.mu.Lock()
	r.names[id] = name
	r.mu.Unlock()
	return name
}

// runtimeClient must be called with r.mu held.
func (r *Resolver) runtimeClient() (runtimeapi.RuntimeServiceClient, error) {
	if r.client != nil {
		return r.client, nil
	}
	if r.endpoint == "" {
		return nil, fmt.Errorf("no runtime endpoint configured")
	}
	conn, err := grpc.NewClient(r.endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create connection: %w", err)
	}
	r.conn = conn
	r.client = runtimeapi.NewRuntimeServiceClient(conn)
	return r.client, nil
}

// ShortID abbreviates a container id the way docker ps prints it.
func ShortID(id string) string {
	if len(id) > shortIDLen {
		return id[:shortIDLen]
	}
	return id
}

// DisplayName is the runtime name of the container, or its short id when
// the runtime cannot name it (a dockerd host without a CRI socket).
func (r *Resolver) DisplayName(ctx context.Context, id string) string {
	if name := r.Name(ctx, id); name != "" {
		return name
	}
	return ShortID(id)
}

// Close releases the gRPC connection.
func (r *Resolver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return nil
	}
	err := r.conn.Close()
	r.conn, r.client = nil, nil
	return err
}
