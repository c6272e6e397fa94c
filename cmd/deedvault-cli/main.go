package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"deedvault/crypto"
)

var rpcEndpoint = defaultRPCEndpoint()
var rpcAuthToken = os.Getenv("DEEDVAULT_RPC_TOKEN")

func main() {
	args := os.Args[1:]
	var err error
	args, err = applyGlobalFlags(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if len(args) < 1 {
		printUsage()
		return
	}

	command := args[0]
	switch command {
	case "generate-key":
		target := "wallet.key.json"
		if len(args) > 1 {
			target = args[1]
		}
		generateKey(target)
	case "balance":
		if len(args) < 2 {
			fmt.Println("Error: Please provide an address.")
			printUsage()
			return
		}
		getBalance(args[1])
	case "escrow":
		runEscrowCommand(args[1:])
	case "deed":
		runDeedCommand(args[1:])
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
	}
}

func printUsage() {
	fmt.Println("Usage: deedvault-cli [--rpc <url>] <command> [arguments]")
	fmt.Println("Commands:")
	fmt.Println("  generate-key [file]                          Generate a new key pair")
	fmt.Println("  balance <address>                            Query an account balance")
	fmt.Println("  escrow <subcommand> [...]                    Escrow operations (see 'escrow help')")
	fmt.Println("  deed <subcommand> [...]                      Deed registry operations (see 'deed help')")
}

func defaultRPCEndpoint() string {
	if v := strings.TrimSpace(os.Getenv("RPC_URL")); v != "" {
		return v
	}
	return "http://localhost:8545"
}

func applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--rpc":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--rpc requires a value")
			}
			i++
			rpcEndpoint = strings.TrimSpace(args[i])
		case strings.HasPrefix(args[i], "--rpc="):
			rpcEndpoint = strings.TrimSpace(strings.TrimPrefix(args[i], "--rpc="))
		default:
			out = append(out, args[i])
		}
	}
	if rpcEndpoint == "" {
		return nil, fmt.Errorf("rpc endpoint must not be empty")
	}
	return out, nil
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *rpcError) Error() string {
	if len(e.Data) > 0 {
		return fmt.Sprintf("%s (code %d): %s", e.Message, e.Code, string(e.Data))
	}
	return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
}

// rpcCall posts a single JSON-RPC request and decodes the result into out.
// The bearer token from DEEDVAULT_RPC_TOKEN is attached when present.
func rpcCall(method string, params interface{}, out interface{}) error {
	payload := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
	}
	if params != nil {
		payload["params"] = []interface{}{params}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, rpcEndpoint, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token := strings.TrimSpace(rpcAuthToken); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var decoded struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("invalid response: %w", err)
	}
	if decoded.Error != nil {
		return decoded.Error
	}
	if out != nil && len(decoded.Result) > 0 {
		return json.Unmarshal(decoded.Result, out)
	}
	return nil
}

func generateKey(path string) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		fmt.Printf("Error generating key: %v\n", err)
		return
	}
	passphrase := strings.TrimSpace(os.Getenv("DEEDVAULT_WALLET_PASS"))
	if passphrase == "" {
		fmt.Println("Error: set DEEDVAULT_WALLET_PASS to protect the generated keystore.")
		return
	}
	if err := crypto.SaveToKeystore(path, key, passphrase); err != nil {
		fmt.Printf("Error saving keystore: %v\n", err)
		return
	}
	fmt.Printf("New key saved to %s\n", path)
	fmt.Printf("Address: %s\n", key.PubKey().Address().String())
}

func getBalance(addr string) {
	var account struct {
		Address string `json:"address"`
		Balance string `json:"balance"`
		Nonce   uint64 `json:"nonce"`
	}
	if err := rpcCall("bank_getAccount", map[string]string{"address": addr}, &account); err != nil {
		fmt.Printf("Error fetching balance: %v\n", err)
		return
	}
	fmt.Printf("State for: %s\n", account.Address)
	fmt.Printf("  Balance: %s\n", account.Balance)
	fmt.Printf("  Nonce:   %d\n", account.Nonce)
}
