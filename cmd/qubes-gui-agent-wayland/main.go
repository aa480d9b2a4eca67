package main

import (
	"log"
	"os"
	"os/exec"

	"github.com/QubesOS/qubes-gui-agent-wayland/internal/agent"
)

// defaultSocketPath is where qubes-gui-daemon listens inside the
// agent's domain.
const defaultSocketPath = "/var/run/qubes/guid-vchan"

func main() {
	socketPath := os.Getenv("QUBES_GUI_SOCKET")
	if socketPath == "" {
		socketPath = defaultSocketPath
	}

	a, err := agent.New(agent.Config{SocketPath: socketPath})
	if err != nil {
		log.Fatalf("qubes-gui-agent-wayland: initialization failed: %v", err)
	}
	defer a.Close()

	if args := os.Args[1:]; len(args) > 0 {
		cmd := exec.Command(args[0], args[1:]...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Start(); err != nil {
			log.Fatalf("qubes-gui-agent-wayland: failed to execute subcommand: %v", err)
		}
		log.Printf("qubes-gui-agent-wayland: spawned child process %v (pid %d)", args, cmd.Process.Pid)
	}

	log.Printf("qubes-gui-agent-wayland: initialization completed, starting the main loop")
	if err := a.Run(); err != nil {
		log.Fatalf("qubes-gui-agent-wayland: %v", err)
	}
	os.Exit(0)
}
