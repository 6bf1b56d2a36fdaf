package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"

	"github.com/devadev/deva/internal/term"
	"github.com/devadev/deva/internal/ui"
)

// Docker implements Engine against the local Docker daemon.
type Docker struct {
	cli *client.Client
}

var _ Engine = (*Docker)(nil)

// NewDocker creates an Engine backed by the local Docker daemon, honoring
// DOCKER_HOST and friends from the environment.
func NewDocker() (*Docker, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	return &Docker{cli: cli}, nil
}

// Ping verifies the Docker daemon is accessible.
func (d *Docker) Ping(ctx context.Context) error {
	if _, err := d.cli.Ping(ctx); err != nil {
		return fmt.Errorf("docker daemon not accessible: %w", err)
	}
	return nil
}

// EnsureImage makes the image available locally per the pull policy.
func (d *Docker) EnsureImage(ctx context.Context, name string, policy PullPolicy) error {
	if policy != PullAlways {
		_, err := d.cli.ImageInspect(ctx, name)
		if err == nil {
			return nil
		}
		if !errdefs.IsNotFound(err) {
			return fmt.Errorf("inspecting image %s: %w", name, err)
		}
		if policy == PullNever {
			return fmt.Errorf("image %s not present locally and pull policy is %q", name, PullNever)
		}
	}

	ui.Infof("Pulling image %s...", name)
	reader, err := d.cli.ImagePull(ctx, name, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pulling image %s: %w", name, err)
	}
	defer reader.Close()

	// Drain the reader to complete the pull (discard JSON progress output)
	_, _ = io.Copy(io.Discard, reader)
	return nil
}

// Create creates a container from the spec and returns its ID.
func (d *Docker) Create(ctx context.Context, spec Spec) (string, error) {
	exposedPorts, portBindings, err := parsePortBindings(spec.Ports)
	if err != nil {
		return "", err
	}

	// Docker rejects TTY mode when stdin is not a real terminal
	// ("the input device is not a TTY"), e.g. piped input or tests.
	useTTY := spec.Interactive && term.IsTerminal(os.Stdin)

	resp, err := d.cli.ContainerCreate(ctx,
		containerConfig(spec, exposedPorts, useTTY),
		hostConfig(spec, portBindings),
		nil, // network config
		nil, // platform
		spec.Name,
	)
	if err != nil {
		return "", fmt.Errorf("creating container: %w", err)
	}
	return resp.ID, nil
}

func containerConfig(spec Spec, exposed nat.PortSet, useTTY bool) *container.Config {
	return &container.Config{
		Image:        spec.Image,
		Cmd:          spec.Cmd,
		WorkingDir:   spec.WorkDir,
		Env:          spec.Env,
		User:         spec.User,
		Labels:       spec.Labels,
		Tty:          useTTY,
		OpenStdin:    spec.Interactive,
		ExposedPorts: exposed,
	}
}

func hostConfig(spec Spec, bindings nat.PortMap) *container.HostConfig {
	hc := &container.HostConfig{
		Mounts:       bindMounts(spec.Mounts),
		PortBindings: bindings,
		ExtraHosts:   spec.ExtraHosts,
		AutoRemove:   spec.AutoRemove,
	}
	// AutoRemove and a restart policy are mutually exclusive in Docker.
	if !spec.AutoRemove {
		hc.RestartPolicy = container.RestartPolicy{Name: container.RestartPolicyUnlessStopped}
	}
	return hc
}

func bindMounts(ms []Mount) []mount.Mount {
	var mounts []mount.Mount
	for _, m := range ms {
		mounts = append(mounts, mount.Mount{
			Type:     mount.TypeBind,
			Source:   m.Source,
			Target:   m.Target,
			ReadOnly: m.ReadOnly,
		})
	}
	return mounts
}

// parsePortBindings converts "host:container" specs to Docker port maps.
// Host ports bind to 127.0.0.1 only.
func parsePortBindings(specs []string) (nat.PortSet, nat.PortMap, error) {
	if len(specs) == 0 {
		return nil, nil, nil
	}
	exposed := make(nat.PortSet)
	bindings := make(nat.PortMap)
	for _, raw := range specs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		hostPort, containerPort, ok := strings.Cut(raw, ":")
		if !ok || hostPort == "" || containerPort == "" {
			return nil, nil, fmt.Errorf("invalid port mapping %q (want host:container)", raw)
		}
		if _, err := strconv.Atoi(containerPort); err != nil {
			return nil, nil, fmt.Errorf("invalid container port %q", containerPort)
		}
		if _, err := strconv.Atoi(hostPort); err != nil {
			return nil, nil, fmt.Errorf("invalid host port %q", hostPort)
		}
		port := nat.Port(containerPort + "/tcp")
		exposed[port] = struct{}{}
		bindings[port] = []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: hostPort}}
	}
	return exposed, bindings, nil
}

// Start starts an existing container.
func (d *Docker) Start(ctx context.Context, id string) error {
	if err := d.cli.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return fmt.Errorf("starting container: %w", err)
	}
	return nil
}

// Stop gracefully stops a container using the daemon's default timeout.
func (d *Docker) Stop(ctx context.Context, id string) error {
	if err := d.cli.ContainerStop(ctx, id, container.StopOptions{}); err != nil {
		return fmt.Errorf("stopping container: %w", err)
	}
	return nil
}

// Remove force-removes a container. Absent containers are not an error, so
// Remove is safe to call during cleanup races.
func (d *Docker) Remove(ctx context.Context, id string) error {
	err := d.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true})
	if err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("removing container: %w", err)
	}
	return nil
}

// Wait blocks until the container stops and returns its exit code.
func (d *Docker) Wait(ctx context.Context, id string) (int64, error) {
	statusCh, errCh := d.cli.ContainerWait(ctx, id, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		return -1, fmt.Errorf("waiting for container: %w", err)
	case status := <-statusCh:
		return status.StatusCode, nil
	}
}

// State returns the container's state ("running", "exited", "created", ...).
func (d *Docker) State(ctx context.Context, id string) (string, error) {
	inspect, err := d.cli.ContainerInspect(ctx, id)
	if err != nil {
		return "", fmt.Errorf("inspecting container: %w", err)
	}
	return inspect.State.Status, nil
}

// FindContainer looks up a container by exact name in any state.
func (d *Docker) FindContainer(ctx context.Context, name string) (*Info, error) {
	// The name filter matches substrings; compare exact names from the
	// result. Docker prefixes names with a slash.
	containers, err := d.cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("name", name)),
	})
	if err != nil {
		return nil, fmt.Errorf("listing containers: %w", err)
	}
	for _, c := range containers {
		for _, n := range c.Names {
			if n == "/"+name {
				info := infoFromSummary(c)
				return &info, nil
			}
		}
	}
	return nil, nil
}

// List returns containers matching all label selectors, including stopped
// ones.
func (d *Docker) List(ctx context.Context, selectors ...string) ([]Info, error) {
	args := filters.NewArgs()
	for _, s := range selectors {
		args.Add("label", s)
	}
	containers, err := d.cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: args,
	})
	if err != nil {
		return nil, fmt.Errorf("listing containers: %w", err)
	}
	infos := make([]Info, 0, len(containers))
	for _, c := range containers {
		infos = append(infos, infoFromSummary(c))
	}
	return infos, nil
}

func infoFromSummary(c container.Summary) Info {
	id := c.ID
	if len(id) > 12 {
		id = id[:12]
	}
	var name string
	if len(c.Names) > 0 {
		name = strings.TrimPrefix(c.Names[0], "/")
	}
	return Info{
		ID:      id,
		Name:    name,
		Image:   c.Image,
		State:   c.State,
		Status:  c.Status,
		Created: time.Unix(c.Created, 0),
		Labels:  c.Labels,
	}
}

// Attach connects stdin/stdout/stderr to a running container.
func (d *Docker) Attach(ctx context.Context, id string, opts AttachOptions) error {
	resp, err := d.cli.ContainerAttach(ctx, id, container.AttachOptions{
		Stream: true,
		Stdin:  opts.Stdin != nil,
		Stdout: opts.Stdout != nil,
		Stderr: opts.Stderr != nil,
	})
	if err != nil {
		return fmt.Errorf("attaching to container: %w", err)
	}
	defer resp.Close()

	return d.pump(ctx, resp, opts, func() error {
		if opts.TTY && opts.Height > 0 && opts.Width > 0 {
			// Best effort; a later SIGWINCH resize fixes a miss.
			_ = d.ResizeTTY(ctx, id, opts.Height, opts.Width)
		}
		return nil
	})
}

// StartAttached attaches to a created container and then starts it. The I/O
// goroutines are wired before the start call so nothing a fast-exiting
// process writes is lost.
func (d *Docker) StartAttached(ctx context.Context, id string, opts AttachOptions) error {
	resp, err := d.cli.ContainerAttach(ctx, id, container.AttachOptions{
		Stream: true,
		Stdin:  opts.Stdin != nil,
		Stdout: opts.Stdout != nil,
		Stderr: opts.Stderr != nil,
	})
	if err != nil {
		return fmt.Errorf("attaching to container: %w", err)
	}
	defer resp.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := resp.Conn.SetDeadline(deadline); err != nil {
			return fmt.Errorf("setting connection deadline: %w", err)
		}
	}

	return d.pump(ctx, resp, opts, func() error {
		if err := d.cli.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
			return fmt.Errorf("starting container: %w", err)
		}
		if opts.TTY && opts.Height > 0 && opts.Width > 0 {
			_ = d.ResizeTTY(ctx, id, opts.Height, opts.Width)
		}
		return nil
	})
}

// Exec runs a command inside a running container and returns its exit code.
func (d *Docker) Exec(ctx context.Context, id string, opts ExecOptions) (int, error) {
	execResp, err := d.cli.ContainerExecCreate(ctx, id, container.ExecOptions{
		Cmd:          opts.Cmd,
		WorkingDir:   opts.WorkDir,
		User:         opts.User,
		Env:          opts.Env,
		Tty:          opts.TTY,
		AttachStdin:  opts.Stdin != nil,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return -1, fmt.Errorf("creating exec: %w", err)
	}

	attach, err := d.cli.ContainerExecAttach(ctx, execResp.ID, container.ExecAttachOptions{
		Tty: opts.TTY,
	})
	if err != nil {
		return -1, fmt.Errorf("attaching to exec: %w", err)
	}
	defer attach.Close()

	if opts.Resize != nil {
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case ws, ok := <-opts.Resize:
					if !ok {
						return
					}
					_ = d.cli.ContainerExecResize(ctx, execResp.ID, container.ResizeOptions{
						Height: ws.Height,
						Width:  ws.Width,
					})
				}
			}
		}()
	}

	streams := AttachOptions{
		Stdin:  opts.Stdin,
		Stdout: opts.Stdout,
		Stderr: opts.Stderr,
		TTY:    opts.TTY,
	}
	err = d.pump(ctx, attach, streams, func() error {
		if opts.TTY && opts.Height > 0 && opts.Width > 0 {
			_ = d.cli.ContainerExecResize(ctx, execResp.ID, container.ResizeOptions{
				Height: opts.Height,
				Width:  opts.Width,
			})
		}
		return nil
	})
	if err != nil {
		return -1, err
	}

	inspect, err := d.cli.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		return -1, fmt.Errorf("inspecting exec: %w", err)
	}
	return inspect.ExitCode, nil
}

// pump copies container I/O until the output stream ends, the context is
// canceled, or stdin fails (e.g. an escape sequence was typed). onReady runs
// after the copy goroutines are wired, before the select loop.
func (d *Docker) pump(ctx context.Context, resp types.HijackedResponse, opts AttachOptions, onReady func() error) error {
	stdout := opts.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := opts.Stderr
	if stderr == nil {
		stderr = stdout
	}

	outputDone := make(chan error, 1)
	stdinDone := make(chan error, 1)

	go func() {
		var err error
		if opts.TTY {
			// TTY output is a single raw stream.
			_, err = io.Copy(stdout, resp.Reader)
		} else {
			// Without a TTY Docker multiplexes stdout/stderr; demux it.
			_, err = stdcopy.StdCopy(stdout, stderr, resp.Reader)
		}
		outputDone <- err
	}()

	if opts.Stdin != nil {
		go func() {
			_, err := io.Copy(resp.Conn, opts.Stdin)
			// Close the write side when stdin ends.
			if cw, ok := resp.Conn.(interface{ CloseWrite() error }); ok {
				if closeErr := cw.CloseWrite(); closeErr != nil && err == nil {
					err = closeErr
				}
			}
			stdinDone <- err
		}()
	}

	if onReady != nil {
		if err := onReady(); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-stdinDone:
			if err != nil && err != io.EOF {
				return err
			}
			// Stdin hit EOF; keep draining output.
		case err := <-outputDone:
			if err != nil && err != io.EOF {
				return err
			}
			return nil
		}
	}
}

// ResizeTTY resizes the container's primary TTY.
func (d *Docker) ResizeTTY(ctx context.Context, id string, height, width uint) error {
	return d.cli.ContainerResize(ctx, id, container.ResizeOptions{
		Height: height,
		Width:  width,
	})
}

// Logs returns up to tail lines of container output (0 means all).
func (d *Docker) Logs(ctx context.Context, id string, tail int) (string, error) {
	inspect, err := d.cli.ContainerInspect(ctx, id)
	if err != nil {
		return "", fmt.Errorf("inspecting container: %w", err)
	}

	opts := container.LogsOptions{ShowStdout: true, ShowStderr: true}
	if tail > 0 {
		opts.Tail = strconv.Itoa(tail)
	}
	reader, err := d.cli.ContainerLogs(ctx, id, opts)
	if err != nil {
		return "", fmt.Errorf("reading container logs: %w", err)
	}
	defer reader.Close()

	var buf bytes.Buffer
	if inspect.Config != nil && inspect.Config.Tty {
		_, err = io.Copy(&buf, reader)
	} else {
		_, err = stdcopy.StdCopy(&buf, &buf, reader)
	}
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("reading container logs: %w", err)
	}
	return buf.String(), nil
}

// Close closes the Docker client.
func (d *Docker) Close() error {
	if d.cli != nil {
		return d.cli.Close()
	}
	return nil
}
