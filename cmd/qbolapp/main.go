// QBolapp — CLI entry point.
//
// A peer-to-peer LAN messenger and file-transfer tool that operates
// directly on the Ethernet link layer, with no network- or transport-layer
// protocol involved. Peers discover each other via periodic broadcasts and
// exchange text or files addressed by MAC.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/pterm/pterm"

	"github.com/qbolapp/qbolapp/internal/config"
	"github.com/qbolapp/qbolapp/internal/engine"
	"github.com/qbolapp/qbolapp/internal/event"
	"github.com/qbolapp/qbolapp/internal/util"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	iface := flag.String("i", "", "Interface to bind (or loop:<name> for an in-memory LAN)")
	userName := flag.String("u", "", "Display name announced to peers")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	pterm.Info.Println(fmt.Sprintf("QBolapp — v%s", version))
	pterm.Println()

	if *iface == "" {
		*iface = askInterface()
	}
	if *userName == "" {
		*userName = askUserName()
	}

	cfg := config.Default()
	cfg.Interface = *iface
	cfg.UserName = *userName
	cfg.Debug = *debugMode

	e, err := engine.Start(cfg)
	if err != nil {
		util.LogError("failed to start engine: %v", err)
		os.Exit(1)
	}

	util.LogSuccess("bound to %s as %q (%s)", *iface, *userName, e.LocalMAC())

	go printEvents(e)

	go func() {
		<-ctx.Done()
		util.LogInfo("shutting down...")
		e.Shutdown()
		os.Exit(0)
	}()

	runREPL(ctx, e)
	e.Shutdown()
}

func printEvents(e *engine.Engine) {
	for ev := range e.Events() {
		switch v := ev.(type) {
		case event.MessageReceived:
			pterm.Println(pterm.LightCyan(fmt.Sprintf("[msg] %s: %s", v.SrcMAC(), v.Text)))
		case event.BroadcastReceived:
			pterm.Println(pterm.LightMagenta(fmt.Sprintf("[bc]  %s: %s", v.SrcMAC(), v.Text)))
		case event.PeerOnline:
			pterm.Println(pterm.LightGreen(fmt.Sprintf("[+] %s (%s) is online", v.Name, macString(v.MAC))))
		case event.PeerOffline:
			pterm.Println(pterm.LightRed(fmt.Sprintf("[-] %s is offline", macString(v.MAC))))
		case event.TransferCompleted:
			dir := "sent"
			if !v.Outbound {
				dir = "received"
			}
			pterm.Println(pterm.LightGreen(fmt.Sprintf("[file] transfer %d %s (%d bytes) %s", v.TransferID, dir, len(v.Data), macString(v.Peer))))
		case event.TransferFailed:
			pterm.Println(pterm.LightRed(fmt.Sprintf("[file] transfer %d with %s failed: %s", v.TransferID, macString(v.Peer), v.Reason)))
		case event.DeliveryFailed:
			pterm.Println(pterm.LightRed(fmt.Sprintf("[!] delivery to %s (seq %d, %s) failed", macString(v.Peer), v.Seq, v.Kind)))
		}
	}
}

func macString(mac [6]byte) string {
	hw := net.HardwareAddr(mac[:])
	return hw.String()
}

// ---------------------------------------------------------------------------
// REPL
// ---------------------------------------------------------------------------

func runREPL(ctx context.Context, e *engine.Engine) {
	printHelp()
	scanner := bufio.NewScanner(os.Stdin)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		fields := strings.SplitN(line, " ", 2)
		cmd := fields[0]
		var rest string
		if len(fields) > 1 {
			rest = fields[1]
		}

		switch cmd {
		case "peers":
			cmdPeers(e)
		case "msg":
			cmdMsg(e, rest, true)
		case "send":
			cmdMsg(e, rest, false)
		case "bc":
			cmdBroadcast(e, rest)
		case "file":
			cmdFile(e, rest)
		case "hello":
			e.AnnounceHello()
			util.LogInfo("presence re-announced")
		case "help":
			printHelp()
		case "exit":
			return
		default:
			util.LogWarning("unknown command %q — type 'help'", cmd)
		}
	}
}

func printHelp() {
	pterm.Println("commands:")
	pterm.Println("  peers                       list known peers")
	pterm.Println("  msg <MAC> <text>            send a reliable message")
	pterm.Println("  send <MAC> <text>           send an unreliable message")
	pterm.Println("  bc <text>                   broadcast a message to all peers")
	pterm.Println("  file <path> <MAC> [reliable] send a file")
	pterm.Println("  hello                       re-announce presence")
	pterm.Println("  help                        show this help")
	pterm.Println("  exit                        shut down and quit")
	pterm.Println()
}

func cmdPeers(e *engine.Engine) {
	peers := e.ListPeers()
	if len(peers) == 0 {
		pterm.Println("no known peers")
		return
	}
	for _, p := range peers {
		pterm.Println(fmt.Sprintf("  %-17s %-16s %-7s last seen %s", p.HWAddr(), p.Name, p.State, p.LastSeen.Format("15:04:05")))
	}
}

func cmdMsg(e *engine.Engine, rest string, reliable bool) {
	fields := strings.SplitN(rest, " ", 2)
	if len(fields) < 2 {
		util.LogWarning("usage: msg <MAC> <text>")
		return
	}
	dst, err := net.ParseMAC(fields[0])
	if err != nil {
		util.LogWarning("invalid MAC address: %v", err)
		return
	}
	seq, err := e.SendMessage(dst, fields[1], reliable)
	if err != nil {
		util.LogError("send failed: %v", err)
		return
	}
	util.LogInfo("sent (seq %d)", seq)
}

func cmdBroadcast(e *engine.Engine, text string) {
	if text == "" {
		util.LogWarning("usage: bc <text>")
		return
	}
	if err := e.SendBroadcast(text); err != nil {
		util.LogError("broadcast failed: %v", err)
	}
}

func cmdFile(e *engine.Engine, rest string) {
	fields := strings.Fields(rest)
	if len(fields) < 2 {
		util.LogWarning("usage: file <path> <MAC> [reliable]")
		return
	}
	path, macStr := fields[0], fields[1]
	reliable := len(fields) > 2 && strings.EqualFold(fields[2], "reliable")

	dst, err := net.ParseMAC(macStr)
	if err != nil {
		util.LogWarning("invalid MAC address: %v", err)
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		util.LogError("failed to read %s: %v", path, err)
		return
	}
	id, err := e.SendFile(dst, data, reliable)
	if err != nil {
		util.LogError("file send failed: %v", err)
		return
	}
	util.LogInfo("transfer %d started (%d bytes)", id, len(data))
}

// ---------------------------------------------------------------------------
// Interactive startup prompts
// ---------------------------------------------------------------------------

func askInterface() string {
	raw, _ := pterm.DefaultInteractiveTextInput.
		WithDefaultText("Interface to bind (e.g. eth0, or loop:demo)").
		Show()
	pterm.Println()
	return strings.TrimSpace(raw)
}

func askUserName() string {
	raw, _ := pterm.DefaultInteractiveTextInput.
		WithDefaultText("Display name").
		Show()
	pterm.Println()
	name := strings.TrimSpace(raw)
	if name == "" {
		name = "anonymous-" + strconv.Itoa(os.Getpid())
	}
	return name
}
