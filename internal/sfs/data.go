package sfs

// dirListing maps a directory path to the names of entries within it.
// Adapted from the teacher's fakeFS table in data.go, trimmed to the
// directories the shell's minimal command vocabulary actually walks.
var dirListing = map[string][]string{
	"/":               {"bin", "boot", "dev", "etc", "home", "lib", "opt", "proc", "root", "run", "srv", "sys", "tmp", "usr", "var"},
	"/root":           {".bash_history", ".bashrc", ".ssh", "backup", "credentials.txt"},
	"/root/.ssh":      {"authorized_keys", "id_rsa", "id_rsa.pub", "known_hosts"},
	"/root/backup":    {"db_backup_2024-11-03.sql.gz", "passwords_old.txt"},
	"/etc":            {"crontab", "fstab", "hosts", "hostname", "os-release", "passwd", "shadow", "ssh", "sudoers"},
	"/etc/ssh":        {"sshd_config", "ssh_host_rsa_key", "ssh_host_ed25519_key"},
	"/home":           {"ubuntu", "admin", "deploy"},
	"/home/ubuntu":    {".bash_history", ".bashrc", "notes.txt"},
	"/home/admin":     {".bash_history", ".bashrc"},
	"/home/deploy":    {".bash_history", ".ssh"},
	"/var":            {"backups", "lib", "log", "www"},
	"/var/log":        {"auth.log", "dpkg.log", "kern.log", "syslog"},
	"/var/www":        {"html"},
	"/var/www/html":   {"index.html", "config.php"},
	"/tmp":            {},
	"/opt":            {},
	"/proc":           {"cpuinfo", "meminfo", "version", "uptime"},
	"/usr":            {"bin", "lib", "local", "share"},
	"/usr/bin":        {},
	"/bin":            {},
}

// fileContent holds the full content of files whose bytes matter to `cat`.
// Adapted from the teacher's fakeFiles map, trimmed to the set spec.md
// names explicitly (/proc/cpuinfo, /proc/meminfo, /etc/os-release,
// /etc/passwd, /etc/shadow) plus enough supporting texture for the rest of
// the directories above to look real under `cat`.
var fileContent = map[string]string{
	"/proc/cpuinfo": `processor	: 0
vendor_id	: GenuineIntel
cpu family	: 6
model		: 85
model name	: Intel(R) Xeon(R) Platinum 8259CL CPU @ 2.50GHz
stepping	: 7
microcode	: 0x5003604
cpu MHz		: 2500.000
cache size	: 36608 KB
physical id	: 0
siblings	: 2
core id		: 0
cpu cores	: 1
apicid		: 0
fpu		: yes
fpu_exception	: yes
cpuid level	: 13
wp		: yes
bogomips	: 5000.00
clflush size	: 64
cache_alignment	: 64
address sizes	: 46 bits physical, 48 bits virtual
`,
	"/proc/meminfo": `MemTotal:       16384000 kB
MemFree:         2048000 kB
MemAvailable:    9876000 kB
Buffers:          512000 kB
Cached:          4096000 kB
SwapCached:            0 kB
SwapTotal:       2097148 kB
SwapFree:        2097148 kB
Dirty:              2048 kB
`,
	"/etc/os-release": `NAME="Ubuntu"
VERSION="22.04.4 LTS (Jammy Jellyfish)"
ID=ubuntu
ID_LIKE=debian
PRETTY_NAME="Ubuntu 22.04.4 LTS"
VERSION_ID="22.04"
HOME_URL="https://www.ubuntu.com/"
SUPPORT_URL="https://help.ubuntu.com/"
VERSION_CODENAME=jammy
UBUNTU_CODENAME=jammy
`,
	"/etc/passwd": `root:x:0:0:root:/root:/bin/bash
daemon:x:1:1:daemon:/usr/sbin:/usr/sbin/nologin
bin:x:2:2:bin:/bin:/usr/sbin/nologin
sys:x:3:3:sys:/dev:/usr/sbin/nologin
sync:x:4:65534:sync:/bin:/bin/sync
games:x:5:60:games:/usr/games:/usr/sbin/nologin
man:x:6:12:man:/var/cache/man:/usr/sbin/nologin
mail:x:8:8:mail:/var/mail:/usr/sbin/nologin
ubuntu:x:1000:1000:Ubuntu:/home/ubuntu:/bin/bash
admin:x:1001:1001:Administrator:/home/admin:/bin/bash
deploy:x:1002:1002:Deploy:/home/deploy:/bin/bash
`,
	"/etc/shadow": `root:!:19700:0:99999:7:::
daemon:*:19700:0:99999:7:::
ubuntu:$6$rounds=4096$abcd1234$hashvalueredacted:19900:0:99999:7:::
`,
	"/root/.bashrc": `# ~/.bashrc: executed by bash(1) for non-login shells.
export PS1='\u@\h:\w\$ '
export PATH=$PATH:/usr/local/sbin
`,
	"/root/.bash_history": `ls -la
cat /etc/passwd
history -c
`,
	"/root/credentials.txt": `# internal use only
DB_HOST=10.0.1.45
DB_USER=root
DB_PASS=Sup3rS3cur3P@ss2024!
`,
	"/home/ubuntu/.bashrc": `export PS1='\u@\h:\w\$ '
`,
	"/home/ubuntu/notes.txt": `TODO: rotate api keys
TODO: patch nginx
`,
	"/var/www/html/index.html": `<html><body><h1>It works!</h1></body></html>
`,
	"/var/www/html/config.php": `<?php
define('DB_HOST', '127.0.0.1');
define('DB_USER', 'webapp');
define('DB_PASS', 'changeme123');
`,
	"/etc/hostname": "ubuntu\n",
	"/etc/hosts": `127.0.0.1	localhost
127.0.1.1	ubuntu
`,
}
