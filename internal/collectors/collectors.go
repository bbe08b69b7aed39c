package collectors

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ipsix/hostsweep/internal/config"
	"github.com/ipsix/hostsweep/internal/risk"
)

// TimeoutClass assigns a task to one of the three configured timeout
// budgets.
type TimeoutClass int

const (
	TimeoutShort TimeoutClass = iota
	TimeoutMedium
	TimeoutLong
)

// Task is one named collection command. Parallel marks it eligible for
// the concurrent group of its stage; Signal names the scored count its
// artifact feeds, empty for context-only artifacts.
type Task struct {
	Name     string
	Category string
	Command  string
	Timeout  TimeoutClass
	Parallel bool
	Signal   risk.Signal
	Artifact string
}

// Stage is one ordered step of the sweep. Stages run in declared order;
// tasks inside a stage run sequential-first, then the parallel group.
type Stage struct {
	Name  string
	Tasks []Task
}

// Categories lists every artifact category a run may produce, in the
// order the report store creates them.
func Categories() []string {
	return []string{"network", "process", "persistence", "filesystem", "logs", "integrity"}
}

// suspiciousPattern matches process names that legitimate software has
// no business using: miners, reverse-shell one-liners, deleted binaries
// still running.
const suspiciousPattern = `xmrig|kinsing|kdevtmpfsi|\[deleted\]|/dev/shm/|/tmp/\.|nc -e|bash -i >& /dev/tcp`

// Plan builds the ordered stage list for one run. The plan is fixed per
// configuration: paranoid adds the integrity-heavy tasks, lookback and
// the common-ports set are substituted into the command text.
func Plan(cfg config.Config) []Stage {
	lookback := cfg.LookbackHours
	mtime := fmt.Sprintf("-mmin -%d", lookback*60)
	portAlt := portAlternation(cfg.CommonPorts)

	stages := []Stage{
		{
			Name: "network",
			Tasks: []Task{
				{
					Name:     "listening-sockets",
					Category: "network",
					Command:  "ss -tulpen 2>/dev/null || netstat -tulpen",
					Timeout:  TimeoutShort,
					Parallel: true,
					Artifact: "network/listening-sockets.txt",
				},
				{
					Name:     "established-connections",
					Category: "network",
					Command:  "ss -tupn state established 2>/dev/null",
					Timeout:  TimeoutShort,
					Parallel: true,
					Artifact: "network/established-connections.txt",
				},
				{
					Name:     "uncommon-established",
					Category: "network",
					Command: fmt.Sprintf(
						`ss -Htn state established 2>/dev/null | awk '{print $4}' | grep -Ev ':(%s)$' || true`,
						portAlt),
					Timeout:  TimeoutShort,
					Parallel: true,
					Signal:   risk.SignalUncommonEstablished,
					Artifact: "network/uncommon-established.txt",
				},
				{
					Name:     "routing-table",
					Category: "network",
					Command:  "ip route show table all 2>/dev/null",
					Timeout:  TimeoutShort,
					Parallel: true,
					Artifact: "network/routing-table.txt",
				},
			},
		},
		{
			Name: "process",
			Tasks: []Task{
				{
					Name:     "process-list",
					Category: "process",
					Command:  "ps auxww --sort=-%cpu",
					Timeout:  TimeoutShort,
					Parallel: true,
					Artifact: "process/process-list.txt",
				},
				{
					Name:     "process-tree",
					Category: "process",
					Command:  "ps -eo pid,ppid,user,lstart,args --forest",
					Timeout:  TimeoutShort,
					Parallel: true,
					Artifact: "process/process-tree.txt",
				},
				{
					Name:     "suspicious-processes",
					Category: "process",
					Command: fmt.Sprintf(
						`ps auxww | grep -E '%s' | grep -v grep || true`, suspiciousPattern),
					Timeout:  TimeoutShort,
					Parallel: true,
					Signal:   risk.SignalSuspiciousProcesses,
					Artifact: "process/suspicious-processes.txt",
				},
			},
		},
		{
			Name: "persistence",
			Tasks: []Task{
				{
					Name:     "crontab-entries",
					Category: "persistence",
					Command:  "for u in $(cut -d: -f1 /etc/passwd); do crontab -l -u \"$u\" 2>/dev/null | sed \"s/^/$u: /\"; done; cat /etc/crontab /etc/cron.d/* 2>/dev/null",
					Timeout:  TimeoutMedium,
					Parallel: false,
					Artifact: "persistence/crontab-entries.txt",
				},
				{
					Name:     "enabled-units",
					Category: "persistence",
					Command:  "systemctl list-unit-files --state=enabled --no-legend --no-pager 2>/dev/null",
					Timeout:  TimeoutShort,
					Parallel: true,
					Artifact: "persistence/enabled-units.txt",
				},
				{
					Name:     "systemd-timers",
					Category: "persistence",
					Command:  "systemctl list-timers --all --no-legend --no-pager 2>/dev/null",
					Timeout:  TimeoutShort,
					Parallel: true,
					Artifact: "persistence/systemd-timers.txt",
				},
			},
		},
		{
			Name: "filesystem",
			Tasks: []Task{
				{
					Name:     "recent-system-executables",
					Category: "filesystem",
					Command: fmt.Sprintf(
						`find /usr/bin /usr/sbin /bin /sbin /usr/local/bin -xdev -type f %s 2>/dev/null`, mtime),
					Timeout:  TimeoutMedium,
					Parallel: true,
					Signal:   risk.SignalRecentExecutables,
					Artifact: "filesystem/recent-system-executables.txt",
				},
				{
					Name:     "recent-home-files",
					Category: "filesystem",
					Command: fmt.Sprintf(
						`find /root /home -xdev -type f %s -not -path '*/.cache/*' 2>/dev/null | head -500`, mtime),
					Timeout:  TimeoutMedium,
					Parallel: true,
					Signal:   risk.SignalRecentHomeFiles,
					Artifact: "filesystem/recent-home-files.txt",
				},
			},
		},
		{
			Name: "logs",
			Tasks: []Task{
				{
					Name:     "auth-failures",
					Category: "logs",
					Command: fmt.Sprintf(
						`journalctl -q --since "-%dh" -u ssh -u sshd 2>/dev/null | grep -iE 'fail|invalid' || true`, lookback),
					Timeout:  TimeoutMedium,
					Parallel: true,
					Artifact: "logs/auth-failures.txt",
				},
				{
					Name:     "recent-logins",
					Category: "logs",
					Command:  "last -Fw -n 50 2>/dev/null",
					Timeout:  TimeoutShort,
					Parallel: true,
					Artifact: "logs/recent-logins.txt",
				},
			},
		},
		{
			Name: "integrity",
			Tasks: []Task{
				{
					Name:     "binary-hashes",
					Category: "integrity",
					Command:  "sha256sum /usr/bin/ssh /usr/bin/sudo /usr/bin/ps /usr/bin/ls /usr/bin/find /usr/bin/curl 2>/dev/null | sort -k2",
					Timeout:  TimeoutShort,
					Parallel: false,
					Artifact: "integrity/binary-hashes.txt",
				},
				{
					Name:     "kernel-modules",
					Category: "integrity",
					Command:  "lsmod | tail -n +2 | sort",
					Timeout:  TimeoutShort,
					Parallel: true,
					Artifact: "integrity/kernel-modules.txt",
				},
			},
		},
	}

	if cfg.Paranoid {
		stages[3].Tasks = append(stages[3].Tasks, Task{
			Name:     "suid-files",
			Category: "filesystem",
			Command:  "find / -xdev -type f \\( -perm -4000 -o -perm -2000 \\) 2>/dev/null | sort",
			Timeout:  TimeoutLong,
			Parallel: true,
			Artifact: "filesystem/suid-files.txt",
		})
		stages[5].Tasks = append(stages[5].Tasks, Task{
			Name:     "package-verify",
			Category: "integrity",
			Command:  "if command -v rpm >/dev/null; then rpm -Va --nomtime 2>/dev/null; elif command -v dpkg >/dev/null; then dpkg --verify 2>/dev/null; fi",
			Timeout:  TimeoutLong,
			Parallel: false,
			Signal:   risk.SignalIntegrityFindings,
			Artifact: "integrity/package-verify.txt",
		})
	}

	return stages
}

// SignalArtifacts maps each scored signal to its producing artifact
// path, relative to the run directory.
func SignalArtifacts(stages []Stage) map[risk.Signal]string {
	out := map[risk.Signal]string{}
	for _, stage := range stages {
		for _, task := range stage.Tasks {
			if task.Signal != "" {
				out[task.Signal] = task.Artifact
			}
		}
	}
	return out
}

func portAlternation(ports []int) string {
	parts := make([]string, 0, len(ports))
	for _, p := range ports {
		parts = append(parts, strconv.Itoa(p))
	}
	return strings.Join(parts, "|")
}
