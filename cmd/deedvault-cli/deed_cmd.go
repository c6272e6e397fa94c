package main

import (
	"fmt"
)

type deedView struct {
	TokenID  uint64 `json:"tokenId"`
	Owner    string `json:"owner"`
	Approved string `json:"approved,omitempty"`
	URI      string `json:"uri"`
	MintedAt int64  `json:"mintedAt"`
}

func runDeedCommand(args []string) {
	if len(args) < 1 || args[0] == "help" {
		printDeedUsage()
		return
	}

	switch args[0] {
	case "mint":
		if len(args) < 3 {
			fmt.Println("Error: deed mint requires <caller> <uri>")
			return
		}
		var minted deedView
		if err := rpcCall("deed_mint", map[string]interface{}{
			"caller": args[1],
			"uri":    args[2],
		}, &minted); err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		printDeed(&minted)
	case "approve":
		if len(args) < 3 {
			fmt.Println("Error: deed approve requires <caller> <tokenId> [operator]")
			return
		}
		id, ok := parsePropertyID(args[2])
		if !ok {
			return
		}
		params := map[string]interface{}{
			"caller":  args[1],
			"tokenId": id,
		}
		if len(args) > 3 {
			params["operator"] = args[3]
		}
		var record deedView
		if err := rpcCall("deed_approve", params, &record); err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		printDeed(&record)
	case "owner":
		if len(args) < 2 {
			fmt.Println("Error: deed owner requires <tokenId>")
			return
		}
		id, ok := parsePropertyID(args[1])
		if !ok {
			return
		}
		var result map[string]string
		if err := rpcCall("deed_ownerOf", map[string]interface{}{"tokenId": id}, &result); err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		fmt.Printf("Owner of deed %d: %s\n", id, result["owner"])
	case "uri":
		if len(args) < 2 {
			fmt.Println("Error: deed uri requires <tokenId>")
			return
		}
		id, ok := parsePropertyID(args[1])
		if !ok {
			return
		}
		var result map[string]string
		if err := rpcCall("deed_tokenURI", map[string]interface{}{"tokenId": id}, &result); err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		fmt.Printf("Metadata for deed %d: %s\n", id, result["uri"])
	default:
		fmt.Printf("Unknown deed subcommand: %s\n", args[0])
		printDeedUsage()
	}
}

func printDeedUsage() {
	fmt.Println("Deed subcommands:")
	fmt.Println("  mint <caller> <uri>                     Mint a new deed to the caller")
	fmt.Println("  approve <caller> <tokenId> [operator]   Grant (or clear) transfer authority")
	fmt.Println("  owner <tokenId>                         Query the current owner")
	fmt.Println("  uri <tokenId>                           Query the metadata URI")
}

func printDeed(record *deedView) {
	fmt.Printf("Deed %d\n", record.TokenID)
	fmt.Printf("  Owner:    %s\n", record.Owner)
	if record.Approved != "" {
		fmt.Printf("  Approved: %s\n", record.Approved)
	}
	fmt.Printf("  URI:      %s\n", record.URI)
}
