package main

import (
	"fmt"
	"net"
	"time"
)

const singleInstanceAddr = "127.0.0.1:49778"

// SingleInstance holds a TCP guard port so two bridges never feed the
// same ground endpoint. The handshake tells an actual second instance
// apart from an unrelated process squatting the port.
type SingleInstance struct {
	listener net.Listener
}

func NewSingleInstance() (*SingleInstance, error) {
	listener, err := net.Listen("tcp", singleInstanceAddr)
	if err != nil {
		conn, dialErr := net.DialTimeout("tcp", singleInstanceAddr, time.Second)
		if dialErr == nil {
			conn.Write([]byte("ping"))
			conn.SetReadDeadline(time.Now().Add(time.Second))
			buf := make([]byte, 4)
			n, _ := conn.Read(buf)
			conn.Close()
			if string(buf[:n]) == "pong" {
				return nil, fmt.Errorf("another instance is already running")
			}
		}
		return nil, fmt.Errorf("guard port busy: %w", err)
	}

	si := &SingleInstance{listener: listener}
	go si.listenLoop()
	return si, nil
}

func (si *SingleInstance) Close() {
	si.listener.Close()
}

func (si *SingleInstance) listenLoop() {
	for {
		conn, err := si.listener.Accept()
		if err != nil {
			return
		}
		buf := make([]byte, 4)
		n, _ := conn.Read(buf)
		if string(buf[:n]) == "ping" {
			conn.Write([]byte("pong"))
		}
		conn.Close()
	}
}
