package shell

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"
)

func cmdLS(s *Shell, args []string) (string, bool) {
	long := false
	var target string
	for _, a := range args {
		if strings.HasPrefix(a, "-") {
			if strings.Contains(a, "l") {
				long = true
			}
			continue
		}
		target = a
	}
	p := s.resolvePath(target)

	isDir, err := afero.IsDir(s.fs, p)
	if err != nil || !isDir {
		if ok, _ := afero.Exists(s.fs, p); ok {
			return pathBase(p), false
		}
		return fmt.Sprintf("ls: cannot access '%s': No such file or directory", orArg(target, p)), false
	}
	entries, err := afero.ReadDir(s.fs, p)
	if err != nil {
		return fmt.Sprintf("ls: cannot access '%s': No such file or directory", orArg(target, p)), false
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	if !long {
		return strings.Join(names, "  "), false
	}
	var lines []string
	lines = append(lines, fmt.Sprintf("total %d", len(names)*4))
	for i, e := range entries {
		mode := "-rw-r--r--"
		if e.IsDir() {
			mode = "drwxr-xr-x"
		}
		lines = append(lines, fmt.Sprintf("%s 1 root root %6d Nov  5 12:00 %s", mode, e.Size(), names[i]))
	}
	return strings.Join(lines, "\n"), false
}

func cmdCD(s *Shell, args []string) (string, bool) {
	target := "~"
	if len(args) > 0 {
		target = args[0]
	}
	p := s.resolvePath(target)
	isDir, err := afero.IsDir(s.fs, p)
	if err != nil || !isDir {
		return fmt.Sprintf("bash: cd: %s: No such file or directory", target), false
	}
	s.cwd = p
	return "", false
}

func cmdPWD(s *Shell, _ []string) (string, bool) {
	return s.cwd, false
}

func cmdCat(s *Shell, args []string) (string, bool) {
	if len(args) == 0 {
		return "", false
	}
	var results []string
	for _, a := range args {
		p := s.resolvePath(a)
		if p == "/etc/shadow" && s.username != "root" {
			results = append(results, "cat: /etc/shadow: Permission denied")
			continue
		}
		data, err := afero.ReadFile(s.fs, p)
		if err != nil {
			results = append(results, fmt.Sprintf("cat: %s: No such file or directory", a))
			continue
		}
		results = append(results, strings.TrimSuffix(string(data), "\n"))
	}
	return strings.Join(results, "\n"), false
}

// cmdEcho deliberately performs no variable or glob expansion: tokenize
// already stripped quoting, so joining the remaining args with spaces
// reproduces exactly what a guest typed modulo quote characters.
func cmdEcho(s *Shell, args []string) (string, bool) {
	return strings.Join(args, " "), false
}

func cmdWhoami(s *Shell, _ []string) (string, bool) {
	return s.username, false
}

func cmdID(s *Shell, _ []string) (string, bool) {
	if s.username == "root" {
		return "uid=0(root) gid=0(root) groups=0(root)", false
	}
	return fmt.Sprintf("uid=1000(%s) gid=1000(%s) groups=1000(%s),4(adm),27(sudo)", s.username, s.username, s.username), false
}

func cmdUname(s *Shell, args []string) (string, bool) {
	all := false
	for _, a := range args {
		if a == "-a" || a == "--all" {
			all = true
		}
	}
	if !all {
		return "Linux", false
	}
	return fmt.Sprintf("Linux %s %s %s x86_64 x86_64 x86_64 GNU/Linux",
		s.hostname, s.profile.KernelShort(), s.profile.KernelBuild()), false
}

func cmdHostname(s *Shell, _ []string) (string, bool) {
	return s.hostname, false
}

func cmdUptime(s *Shell, _ []string) (string, bool) {
	return fmt.Sprintf(" %s up %s,  1 user,  load average: %s",
		time.Now().Format("15:04:05"), s.profile.UptimeStr, s.profile.LoadStr), false
}

func cmdPS(s *Shell, _ []string) (string, bool) {
	return fmt.Sprintf(
		"  PID TTY          TIME CMD\n"+
			"    1 ?        00:00:02 systemd\n"+
			"  %4d ?        00:00:00 sshd\n"+
			" %4d pts/0    00:00:00 bash\n"+
			" %4d pts/0    00:00:00 ps",
		s.profile.SSHDPID, s.profile.SSHDPID+2, s.profile.SSHDPID+3), false
}

func cmdEnv(s *Shell, _ []string) (string, bool) {
	keys := make([]string, 0, len(s.env))
	for k := range s.env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+s.env[k])
	}
	return strings.Join(lines, "\n"), false
}

func cmdExport(s *Shell, args []string) (string, bool) {
	for _, a := range args {
		if k, v, ok := strings.Cut(a, "="); ok {
			s.env[k] = v
		}
	}
	return "", false
}

func cmdHistory(s *Shell, _ []string) (string, bool) {
	lines := make([]string, 0, len(s.history))
	for i, h := range s.history {
		lines = append(lines, fmt.Sprintf("%5d  %s", i+1, h))
	}
	return strings.Join(lines, "\n"), false
}

func cmdClear(s *Shell, _ []string) (string, bool) {
	s.write("\x1b[H\x1b[2J")
	return "", false
}

func cmdExit(s *Shell, _ []string) (string, bool) {
	s.write("logout\r\n")
	s.closeDone()
	return "", true
}

func cmdWget(s *Shell, args []string) (string, bool) {
	url := lastNonFlag(args)
	if url == "" {
		return "wget: missing URL", false
	}
	return fmt.Sprintf("--%s--  %s\nResolving host... failed: Temporary failure in name resolution.",
		time.Now().Format("2006-01-02 15:04:05"), url), false
}

func cmdCurl(s *Shell, args []string) (string, bool) {
	url := lastNonFlag(args)
	if url == "" {
		return "curl: try 'curl --help' for more information", false
	}
	return fmt.Sprintf("curl: (6) Could not resolve host: %s", hostOf(url)), false
}

func cmdSudo(s *Shell, args []string) (string, bool) {
	if len(args) == 0 {
		return "usage: sudo command", false
	}
	out, exit := s.dispatch(strings.Join(args, " "))
	return out, exit
}

func cmdSu(s *Shell, args []string) (string, bool) {
	target := "root"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		target = args[0]
	}
	s.username = target
	s.env["USER"] = target
	if target == "root" {
		s.cwd = "/root"
		s.env["HOME"] = "/root"
	} else {
		s.cwd = "/home/" + target
		s.env["HOME"] = s.cwd
	}
	return "", false
}

func cmdApt(s *Shell, args []string) (string, bool) {
	if len(args) == 0 {
		return "apt 2.4.11 (amd64)", false
	}
	switch args[0] {
	case "update":
		return "Reading package lists... Done\nBuilding dependency tree... Done\nAll packages are up to date.", false
	case "upgrade":
		return "Reading package lists... Done\nCalculating upgrade... Done\n0 upgraded, 0 newly installed, 0 to remove and 0 not upgraded.", false
	case "install":
		if len(args) < 2 {
			return "E: Must specify at least one package to install", false
		}
		return fmt.Sprintf("E: Unable to locate package %s", args[1]), false
	}
	return "", false
}

func cmdTouch(s *Shell, args []string) (string, bool) {
	for _, a := range args {
		p := s.resolvePath(a)
		if ok, _ := afero.Exists(s.fs, p); ok {
			continue
		}
		if err := afero.WriteFile(s.fs, p, []byte{}, 0644); err != nil {
			return fmt.Sprintf("touch: cannot touch '%s': %v", a, err), false
		}
	}
	return "", false
}

func cmdRM(s *Shell, args []string) (string, bool) {
	recursive := false
	var targets []string
	for _, a := range args {
		if strings.HasPrefix(a, "-") {
			if strings.ContainsAny(a, "rR") {
				recursive = true
			}
			continue
		}
		targets = append(targets, a)
	}
	var errs []string
	for _, t := range targets {
		p := s.resolvePath(t)
		var err error
		if recursive {
			err = s.fs.RemoveAll(p)
		} else {
			err = s.fs.Remove(p)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("rm: cannot remove '%s': No such file or directory", t))
		}
	}
	return strings.Join(errs, "\n"), false
}

func cmdMkdir(s *Shell, args []string) (string, bool) {
	parents := false
	var targets []string
	for _, a := range args {
		if a == "-p" {
			parents = true
			continue
		}
		if strings.HasPrefix(a, "-") {
			continue
		}
		targets = append(targets, a)
	}
	var errs []string
	for _, t := range targets {
		p := s.resolvePath(t)
		var err error
		if parents {
			err = s.fs.MkdirAll(p, 0755)
		} else {
			err = s.fs.Mkdir(p, 0755)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("mkdir: cannot create directory '%s': File exists", t))
		}
	}
	return strings.Join(errs, "\n"), false
}

func cmdRmdir(s *Shell, args []string) (string, bool) {
	var errs []string
	for _, t := range args {
		p := s.resolvePath(t)
		entries, err := afero.ReadDir(s.fs, p)
		if err != nil {
			errs = append(errs, fmt.Sprintf("rmdir: failed to remove '%s': No such file or directory", t))
			continue
		}
		if len(entries) > 0 {
			errs = append(errs, fmt.Sprintf("rmdir: failed to remove '%s': Directory not empty", t))
			continue
		}
		if err := s.fs.Remove(p); err != nil {
			errs = append(errs, fmt.Sprintf("rmdir: failed to remove '%s': %v", t, err))
		}
	}
	return strings.Join(errs, "\n"), false
}

func cmdMv(s *Shell, args []string) (string, bool) {
	if len(args) != 2 {
		return "usage: mv source dest", false
	}
	src, dst := s.resolvePath(args[0]), s.resolvePath(args[1])
	if err := s.fs.Rename(src, dst); err != nil {
		return fmt.Sprintf("mv: cannot move '%s' to '%s': No such file or directory", args[0], args[1]), false
	}
	return "", false
}

func cmdCp(s *Shell, args []string) (string, bool) {
	if len(args) != 2 {
		return "usage: cp source dest", false
	}
	src, dst := s.resolvePath(args[0]), s.resolvePath(args[1])
	data, err := afero.ReadFile(s.fs, src)
	if err != nil {
		return fmt.Sprintf("cp: cannot stat '%s': No such file or directory", args[0]), false
	}
	if err := afero.WriteFile(s.fs, dst, data, 0644); err != nil {
		return fmt.Sprintf("cp: cannot create '%s': %v", args[1], err), false
	}
	return "", false
}

func cmdDF(s *Shell, args []string) (string, bool) {
	human := false
	for _, a := range args {
		if strings.Contains(a, "h") {
			human = true
		}
	}
	usedPct := s.profile.DiskUsed
	sizeGB := s.profile.DiskSize
	if human {
		return fmt.Sprintf(
			"Filesystem      Size  Used Avail Use%% Mounted on\n"+
				"/dev/root       %3dG  %3dG  %3dG  %2d%% /",
			sizeGB, sizeGB*usedPct/100, sizeGB-sizeGB*usedPct/100, usedPct), false
	}
	blocks := sizeGB * 1024 * 1024
	return fmt.Sprintf(
		"Filesystem     1K-blocks      Used Available Use%% Mounted on\n"+
			"/dev/root      %10d %9d %9d  %2d%% /",
		blocks, blocks*usedPct/100, blocks-blocks*usedPct/100, usedPct), false
}

func cmdIfconfig(s *Shell, _ []string) (string, bool) {
	return fmt.Sprintf(
		"eth0: flags=4163<UP,BROADCAST,RUNNING,MULTICAST>  mtu 1500\n"+
			"        inet %s  netmask 255.255.255.0  broadcast %s.255\n"+
			"        ether 02:42:ac:11:00:02  txqueuelen 0  (Ethernet)\n\n"+
			"lo: flags=73<UP,LOOPBACK,RUNNING>  mtu 65536\n"+
			"        inet 127.0.0.1  netmask 255.0.0.0",
		s.profile.LastIP, subnetOf(s.profile.LastIP)), false
}

func cmdIP(s *Shell, args []string) (string, bool) {
	mode := "addr"
	if len(args) > 0 {
		mode = args[0]
	}
	switch mode {
	case "a", "addr", "address":
		return fmt.Sprintf(
			"1: lo: <LOOPBACK,UP,LOWER_UP> mtu 65536 qdisc noqueue state UNKNOWN\n"+
				"    inet 127.0.0.1/8 scope host lo\n"+
				"2: eth0: <BROADCAST,MULTICAST,UP,LOWER_UP> mtu 1500 qdisc noqueue state UP\n"+
				"    inet %s/24 brd %s.255 scope global eth0",
			s.profile.LastIP, subnetOf(s.profile.LastIP)), false
	case "r", "route":
		return fmt.Sprintf("default via %s.1 dev eth0\n%s.0/24 dev eth0 scope link", subnetOf(s.profile.LastIP), subnetOf(s.profile.LastIP)), false
	}
	return "", false
}

func cmdFree(s *Shell, args []string) (string, bool) {
	human := false
	for _, a := range args {
		if a == "-h" || a == "-m" || a == "-g" {
			human = true
		}
	}
	if human {
		return fmt.Sprintf(
			"              total        used        free      shared  buff/cache   available\n"+
				"Mem:           %s         %s        512M         12M        2.0G        9.5G\n"+
				"Swap:          2.0G          0B        2.0G",
			s.profile.MemTotal, s.profile.MemUsed), false
	}
	return "              total        used        free      shared  buff/cache   available\nMem:       16384000     4096000    2048000       12000     4096000     9876000\nSwap:       2097148           0     2097148", false
}

func cmdNetstat(s *Shell, _ []string) (string, bool) {
	return fmt.Sprintf(
		"Active Internet connections (w/o servers)\n"+
			"Proto Recv-Q Send-Q Local Address           Foreign Address         State\n"+
			"tcp        0      0 %s:22            %s:51342        ESTABLISHED",
		s.profile.LastIP, s.profile.LastIP), false
}

func pathBase(p string) string {
	i := strings.LastIndex(p, "/")
	if i < 0 {
		return p
	}
	return p[i+1:]
}

func orArg(arg, resolved string) string {
	if arg == "" {
		return resolved
	}
	return arg
}

func lastNonFlag(args []string) string {
	for i := len(args) - 1; i >= 0; i-- {
		if !strings.HasPrefix(args[i], "-") {
			return args[i]
		}
	}
	return ""
}

func hostOf(rawurl string) string {
	u := strings.TrimPrefix(strings.TrimPrefix(rawurl, "https://"), "http://")
	if i := strings.IndexAny(u, "/:"); i >= 0 {
		u = u[:i]
	}
	return u
}

func subnetOf(ip string) string {
	parts := strings.Split(ip, ".")
	if len(parts) != 4 {
		return "10.0.1"
	}
	return strings.Join(parts[:3], ".")
}
