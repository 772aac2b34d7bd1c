package procutil

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"runtime/debug"
	"strconv"
	"strings"

	"github.com/go-clog/clog"
)

// Workers run as separate processes made by re-executing our own binary.
// Spawn sets argv[0] to the registered worker name; WorkerInit, called
// first thing in main, recognizes the name and runs the worker instead of
// the normal command line. Descriptors ride along as ExtraFiles, so they
// land at 3 and up in the child.
const (
	envWorkerFDs   = "EUCA2OOLS_WORKER_FDS"
	envWorkerFence = "EUCA2OOLS_WORKER_FENCE"

	// first descriptor os/exec assigns to ExtraFiles
	extraFilesBase = 3
)

// Worker exit codes: anything the wrapper contains becomes a plain
// failure status, an interrupt is a normal shutdown.
const (
	exitOK      = 0
	exitFailure = 1
)

// WorkerFunc is the body of a worker process. args arrive exactly as given
// to Spawn; files are the handed-over descriptors, in Spawn order.
type WorkerFunc func(args []string, files []*os.File) error

var workers = make(map[string]WorkerFunc)

// RegisterWorker makes fn spawnable under name. Registration must happen
// before WorkerInit runs, which in practice means from an init function.
func RegisterWorker(name string, fn WorkerFunc) {
	if _, dup := workers[name]; dup {
		panic("procutil: worker " + name + " registered twice")
	}
	workers[name] = fn
}

// Work describes one worker launch.
type Work struct {
	Name     string     // registered worker name
	Args     []string   // handed to the worker untouched
	Files    []*os.File // descriptors for the child, in order
	CloseFDs bool       // fence the child before running, keeping only Files

	// Stdout and Stderr replace the inherited ones when set. They must be
	// real files; the child is not waited on, so there is no parent-side
	// goroutine to pump an arbitrary writer.
	Stdout *os.File
	Stderr *os.File
}

// Child is a handle on a spawned worker. Holding one does not reap the
// process; pair it with ReapAsync, or Wait on it directly.
type Child struct {
	pid int
	cmd *exec.Cmd
}

// Pid returns the worker's process id.
func (c *Child) Pid() int { return c.pid }

// Signal sends sig to the worker.
func (c *Child) Signal(sig os.Signal) error {
	return c.cmd.Process.Signal(sig)
}

// Wait blocks until the worker exits and returns its exit code. A caller
// that handed the pid to ReapAsync must not also Wait.
func (c *Child) Wait() (int, error) {
	err := c.cmd.Wait()
	if err == nil {
		return exitOK, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}

// Spawn launches the registered worker named by w.Name in a new process.
// It returns as soon as the process exists; the worker's outcome travels
// out of band, through its descriptors and its exit status. The parent
// still holds its copies of w.Files afterwards and should close them once
// the child is running.
func Spawn(w Work) (*Child, error) {
	if _, ok := workers[w.Name]; !ok {
		return nil, fmt.Errorf("spawn: no worker %q registered: %w", w.Name, ErrSpawnFailed)
	}
	exe, err := executable()
	if err != nil {
		return nil, fmt.Errorf("spawn %s: %v: %w", w.Name, err, ErrSpawnFailed)
	}

	cmd := &exec.Cmd{
		Path:       exe,
		Args:       append([]string{w.Name}, w.Args...),
		Env:        workerEnv(len(w.Files), w.CloseFDs),
		ExtraFiles: w.Files,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
	}
	if w.Stdout != nil {
		cmd.Stdout = w.Stdout
	}
	if w.Stderr != nil {
		cmd.Stderr = w.Stderr
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn %s: %v: %w", w.Name, err, ErrSpawnFailed)
	}
	clog.Trace("spawned worker %s as pid %d", w.Name, cmd.Process.Pid)

	return &Child{pid: cmd.Process.Pid, cmd: cmd}, nil
}

// WorkerInit dispatches to a registered worker when this process was
// started by Spawn. Call it before any command handling; a false return
// means this is a regular invocation. When a worker does run, WorkerInit
// never returns: the process exits 0 on success or clean interrupt and 1
// on any contained failure.
func WorkerInit() bool {
	name := os.Args[0]
	fn, ok := workers[name]
	if !ok {
		return false
	}
	os.Exit(runWorker(name, fn, os.Args[1:]))
	return true // not reached
}

// runWorker is the in-child wrapper around the worker body. Nothing a
// worker does may take down the caller side, so errors and panics all end
// here, as a line on stderr and a failure status.
func runWorker(name string, fn WorkerFunc, args []string) (code int) {
	if name == "" {
		name = "unknown"
	}

	// A supervisor cancelling the pipeline sends SIGINT; that is a normal
	// shutdown, not something to report.
	intc := make(chan os.Signal, 1)
	signal.Notify(intc, os.Interrupt)
	go func() {
		<-intc
		os.Exit(exitOK)
	}()

	defer func() {
		if r := recover(); r != nil {
			os.Stderr.Write(debug.Stack())
			fmt.Fprintf(os.Stderr, "Error in wrapped process %q: %v\n", name, r)
			code = exitFailure
		}
	}()

	// The fence runs before the handed descriptors get their os.File
	// wrappers. Wrapping can register a descriptor with the runtime
	// poller, and the descriptors the poller creates for itself must not
	// be swept up by the fence.
	nfiles := workerFileCount()
	if os.Getenv(envWorkerFence) == "1" {
		refs := make([]interface{}, nfiles)
		for i := range refs {
			refs[i] = extraFilesBase + i
		}
		if err := CloseAllFDs(refs...); err != nil {
			fmt.Fprintf(os.Stderr, "Error in wrapped process %q: %v\n", name, err)
			return exitFailure
		}
	}
	files := workerFiles(nfiles)

	if err := fn(args, files); err != nil {
		fmt.Fprintf(os.Stderr, "Error in wrapped process %q: %v\n", name, err)
		return exitFailure
	}
	return exitOK
}

// workerFileCount reads how many descriptors Spawn handed over.
func workerFileCount() int {
	n, err := strconv.Atoi(os.Getenv(envWorkerFDs))
	if err != nil || n <= 0 {
		return 0
	}
	return n
}

// workerFiles wraps the handed-over descriptors.
func workerFiles(n int) []*os.File {
	if n <= 0 {
		return nil
	}
	files := make([]*os.File, n)
	for i := range files {
		fd := extraFilesBase + i
		files[i] = os.NewFile(uintptr(fd), "fd"+strconv.Itoa(fd))
	}
	return files
}

// workerEnv is the parent environment with our own markers replaced, so a
// worker spawning further workers cannot leak stale values.
func workerEnv(nfiles int, fence bool) []string {
	env := make([]string, 0, len(os.Environ())+2)
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, envWorkerFDs+"=") || strings.HasPrefix(kv, envWorkerFence+"=") {
			continue
		}
		env = append(env, kv)
	}
	env = append(env, envWorkerFDs+"="+strconv.Itoa(nfiles))
	if fence {
		env = append(env, envWorkerFence+"=1")
	}
	return env
}

// executable is the path re-executed for workers. The magic self link is
// immune to the binary being moved or deleted while we run.
func executable() (string, error) {
	if _, err := os.Stat("/proc/self/exe"); err == nil {
		return "/proc/self/exe", nil
	}
	return os.Executable()
}
