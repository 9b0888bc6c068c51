package preflight

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"golang.org/x/sys/unix"
)

const gib = 1 << 30

// minMemoryPerProc is a rough floor for fMRIPrep per worker process.
const minMemoryPerProc = 2 * gib

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckInputDirectory verifies that a directory exists and is readable.
func CheckInputDirectory(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not readable: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (readable)", path)}
}

// EnsureDirectory creates path when missing, then checks access.
func EnsureDirectory(name, path string) Result {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: create: %v)", path, err)}
	}
	return CheckDirectoryAccess(name, path)
}

// CheckAsset verifies that an asset file exists and is readable.
func CheckAsset(name, path string) Result {
	label := "Asset " + name
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: label, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: label, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if info.IsDir() {
		return Result{Name: label, Detail: fmt.Sprintf("%s (error: is a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK); err != nil {
		return Result{Name: label, Detail: fmt.Sprintf("%s (error: not readable: %v)", path, err)}
	}
	return Result{Name: label, Passed: true, Detail: fmt.Sprintf("%s (%s)", path, humanize.IBytes(uint64(info.Size())))}
}

// CheckFreeSpace verifies that the filesystem holding path has at least
// minGiB gibibytes available. A zero threshold only reports the figure.
func CheckFreeSpace(name, path string, minGiB int) Result {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	available := stat.Bavail * uint64(stat.Bsize)
	detail := fmt.Sprintf("%s free on %s", humanize.IBytes(available), path)
	if minGiB > 0 && available < uint64(minGiB)*gib {
		return Result{Name: name, Detail: fmt.Sprintf("%s (need %d GiB)", detail, minGiB)}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckCPU compares the process-count hint to the logical CPU count.
func CheckCPU(procs int) Result {
	const name = "CPU"
	count, err := cpu.Counts(true)
	if err != nil || count <= 0 {
		return Result{Name: name, Advisory: true, Detail: "unable to determine CPU count"}
	}
	if procs > count {
		return Result{Name: name, Advisory: true, Detail: fmt.Sprintf("%d processes requested, %d logical CPUs available", procs, count)}
	}
	return Result{Name: name, Advisory: true, Passed: true, Detail: fmt.Sprintf("%d of %d logical CPUs", procs, count)}
}

// CheckMemory compares available memory to a per-process floor.
func CheckMemory(procs int) Result {
	const name = "Memory"
	vm, err := mem.VirtualMemory()
	if err != nil || vm == nil {
		return Result{Name: name, Advisory: true, Detail: "unable to determine memory"}
	}
	want := uint64(procs) * minMemoryPerProc
	detail := fmt.Sprintf("%s available of %s", humanize.IBytes(vm.Available), humanize.IBytes(vm.Total))
	if vm.Available < want {
		return Result{Name: name, Advisory: true, Detail: fmt.Sprintf("%s (about %s suggested for %d processes)", detail, humanize.IBytes(want), procs)}
	}
	return Result{Name: name, Advisory: true, Passed: true, Detail: detail}
}
