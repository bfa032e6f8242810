package main

import (
	"fmt"
	"net"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/Lucy-dot-dot/ssh-honeypot/internal/keys"
)

func main() {
	signer, err := keys.LoadOrGenerate("/tmp/repro-keys")
	if err != nil {
		panic(err)
	}
	serverConn, clientConn := net.Pipe()

	go func() {
		_ = serverConn.SetDeadline(time.Now().Add(5 * time.Second))
		cfg := &ssh.ServerConfig{
			PasswordCallback: func(meta ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
				fmt.Println("password cb called")
				return &ssh.Permissions{}, nil
			},
		}
		cfg.AddHostKey(signer)
		_, _, _, err2 := ssh.NewServerConn(serverConn, cfg)
		fmt.Println("server done", err2)
	}()

	clientCfg := &ssh.ClientConfig{
		User:            "root",
		Auth:            []ssh.AuthMethod{ssh.Password("toor")},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         5 * time.Second,
	}
	_, _, _, err3 := ssh.NewClientConn(clientConn, "pipe", clientCfg)
	fmt.Println("client done", err3)
	time.Sleep(1 * time.Second)
}
