package main

import (
	"fmt"
	"strconv"
)

type listingView struct {
	PropertyID       uint64 `json:"propertyId"`
	Buyer            string `json:"buyer"`
	PurchasePrice    string `json:"purchasePrice"`
	EscrowAmount     string `json:"escrowAmount"`
	Listed           bool   `json:"listed"`
	InspectionPassed bool   `json:"inspectionPassed"`
	Approvals        struct {
		Buyer  bool `json:"buyer"`
		Seller bool `json:"seller"`
		Lender bool `json:"lender"`
	} `json:"approvals"`
	Balance    string `json:"balance"`
	Settleable bool   `json:"settleable"`
	CreatedAt  int64  `json:"createdAt"`
}

func runEscrowCommand(args []string) {
	if len(args) < 1 || args[0] == "help" {
		printEscrowUsage()
		return
	}

	switch args[0] {
	case "list":
		if len(args) < 5 {
			fmt.Println("Error: escrow list requires <caller> <propertyId> <buyer> <price> [earnest]")
			return
		}
		earnest := "0"
		if len(args) > 5 {
			earnest = args[5]
		}
		id, ok := parsePropertyID(args[2])
		if !ok {
			return
		}
		escrowMutation("escrow_list", map[string]interface{}{
			"caller":        args[1],
			"propertyId":    id,
			"buyer":         args[3],
			"purchasePrice": args[4],
			"escrowAmount":  earnest,
		})
	case "deposit":
		escrowAmountCommand("escrow_depositEarnest", args[1:])
	case "fund":
		escrowAmountCommand("escrow_fundSale", args[1:])
	case "inspect":
		if len(args) < 4 {
			fmt.Println("Error: escrow inspect requires <caller> <propertyId> <pass|fail>")
			return
		}
		id, ok := parsePropertyID(args[2])
		if !ok {
			return
		}
		passed := args[3] == "pass" || args[3] == "true"
		escrowMutation("escrow_updateInspection", map[string]interface{}{
			"caller":     args[1],
			"propertyId": id,
			"passed":     passed,
		})
	case "approve":
		escrowActorCommand("escrow_approveSale", args[1:])
	case "finalize":
		escrowActorCommand("escrow_finalizeSale", args[1:])
	case "cancel":
		escrowActorCommand("escrow_cancelSale", args[1:])
	case "show":
		if len(args) < 2 {
			fmt.Println("Error: escrow show requires <propertyId>")
			return
		}
		id, ok := parsePropertyID(args[1])
		if !ok {
			return
		}
		var listing listingView
		if err := rpcCall("escrow_getListing", map[string]interface{}{"propertyId": id}, &listing); err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		printListing(&listing)
	case "balance":
		params := map[string]interface{}{}
		if len(args) > 1 {
			id, ok := parsePropertyID(args[1])
			if !ok {
				return
			}
			params["propertyId"] = id
		}
		var balances map[string]string
		if err := rpcCall("escrow_getBalance", params, &balances); err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		fmt.Printf("Vault balance: %s\n", balances["vaultBalance"])
		if listing, ok := balances["listingBalance"]; ok {
			fmt.Printf("Listing balance: %s\n", listing)
		}
	case "roles":
		var roles struct {
			Seller    string `json:"seller"`
			Lender    string `json:"lender"`
			Inspector string `json:"inspector"`
			Vault     string `json:"vault"`
		}
		if err := rpcCall("escrow_roles", nil, &roles); err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		fmt.Printf("Seller:    %s\n", roles.Seller)
		fmt.Printf("Lender:    %s\n", roles.Lender)
		fmt.Printf("Inspector: %s\n", roles.Inspector)
		fmt.Printf("Vault:     %s\n", roles.Vault)
	case "events":
		params := map[string]interface{}{"prefix": "escrow."}
		if len(args) > 1 {
			limit, err := strconv.Atoi(args[1])
			if err != nil {
				fmt.Println("Error: invalid limit.")
				return
			}
			params["limit"] = limit
		}
		var events []struct {
			Type       string            `json:"type"`
			Attributes map[string]string `json:"attributes"`
		}
		if err := rpcCall("escrow_listEvents", params, &events); err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		for _, evt := range events {
			fmt.Printf("%s %v\n", evt.Type, evt.Attributes)
		}
	default:
		fmt.Printf("Unknown escrow subcommand: %s\n", args[0])
		printEscrowUsage()
	}
}

func printEscrowUsage() {
	fmt.Println("Escrow subcommands:")
	fmt.Println("  list <caller> <propertyId> <buyer> <price> [earnest]   Activate a listing")
	fmt.Println("  deposit <caller> <propertyId> <amount>                 Buyer posts the earnest deposit")
	fmt.Println("  fund <caller> <propertyId> <amount>                    Contribute sale funds")
	fmt.Println("  inspect <caller> <propertyId> <pass|fail>              Record the inspection outcome")
	fmt.Println("  approve <caller> <propertyId>                          Approve the sale")
	fmt.Println("  finalize <caller> <propertyId>                         Settle the sale")
	fmt.Println("  cancel <caller> <propertyId>                           Cancel and refund")
	fmt.Println("  show <propertyId>                                      Display a listing")
	fmt.Println("  balance [propertyId]                                   Vault and listing balances")
	fmt.Println("  roles                                                  Configured party addresses")
	fmt.Println("  events [limit]                                         Recent escrow events")
}

func escrowAmountCommand(method string, args []string) {
	if len(args) < 3 {
		fmt.Println("Error: requires <caller> <propertyId> <amount>")
		return
	}
	id, ok := parsePropertyID(args[1])
	if !ok {
		return
	}
	escrowMutation(method, map[string]interface{}{
		"caller":     args[0],
		"propertyId": id,
		"amount":     args[2],
	})
}

func escrowActorCommand(method string, args []string) {
	if len(args) < 2 {
		fmt.Println("Error: requires <caller> <propertyId>")
		return
	}
	id, ok := parsePropertyID(args[1])
	if !ok {
		return
	}
	escrowMutation(method, map[string]interface{}{
		"caller":     args[0],
		"propertyId": id,
	})
}

func escrowMutation(method string, params map[string]interface{}) {
	var listing listingView
	if err := rpcCall(method, params, &listing); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	printListing(&listing)
}

func printListing(listing *listingView) {
	fmt.Printf("Listing %d\n", listing.PropertyID)
	fmt.Printf("  Buyer:          %s\n", listing.Buyer)
	fmt.Printf("  Price:          %s\n", listing.PurchasePrice)
	fmt.Printf("  Earnest:        %s\n", listing.EscrowAmount)
	fmt.Printf("  Active:         %t\n", listing.Listed)
	fmt.Printf("  Inspection:     %t\n", listing.InspectionPassed)
	fmt.Printf("  Approvals:      buyer=%t seller=%t lender=%t\n",
		listing.Approvals.Buyer, listing.Approvals.Seller, listing.Approvals.Lender)
	fmt.Printf("  Funds:          %s\n", listing.Balance)
	fmt.Printf("  Settleable:     %t\n", listing.Settleable)
}

func parsePropertyID(raw string) (uint64, bool) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		fmt.Println("Error: invalid property id.")
		return 0, false
	}
	return id, true
}
