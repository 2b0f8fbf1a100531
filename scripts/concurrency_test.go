//go:build ignore
// +build ignore

// Package main is a manual concurrency stress run against a live libraryd.
//
// Usage:
//
//	TOKENS=<jwt1>,<jwt2>,... go run ./scripts/concurrency_test.go <book_id>
//
// Tokens come from POST /auth/login, one per student. Each student fires a
// borrow of the same book at the same moment; whoever gets a copy then fires
// two renewals of that loan at once.
//
// What it checks:
//  1. Loans issued never exceed the copies the book had on the shelf.
//  2. available_copies afterwards equals the starting value minus loans issued.
//  3. Two simultaneous renewals of one loan each either apply in turn or come
//     back refused. Neither fails with a server error.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

const defaultServerAddr = "http://localhost:8080"

var client = &http.Client{Timeout: 10 * time.Second}

type borrowResult struct {
	Token      string
	LoanID     string
	StatusCode int
	Err        error
}

type renewOutcome struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func main() {
	serverAddr := os.Getenv("SERVER_ADDR")
	if serverAddr == "" {
		serverAddr = defaultServerAddr
	}
	if len(os.Args) < 2 {
		log.Fatal("Usage: TOKENS=<jwt1,jwt2,...> go run ./scripts/concurrency_test.go <book_id>")
	}
	bookID := os.Args[1]

	var tokens []string
	for _, t := range strings.Split(os.Getenv("TOKENS"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			tokens = append(tokens, t)
		}
	}
	if len(tokens) == 0 {
		log.Fatal("At least one bearer token must be provided via TOKENS")
	}

	before, err := availableCopies(serverAddr, bookID, tokens[0])
	if err != nil {
		log.Fatalf("read book: %v", err)
	}

	fmt.Printf("=== Circulation Concurrency Run ===\n")
	fmt.Printf("Server    : %s\n", serverAddr)
	fmt.Printf("Book      : %s (%d on the shelf)\n", bookID, before)
	fmt.Printf("Borrowers : %d\n\n", len(tokens))

	results := make([]borrowResult, len(tokens))
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i, tok := range tokens {
		wg.Add(1)
		go func(idx int, token string) {
			defer wg.Done()
			<-start
			results[idx] = borrow(serverAddr, bookID, token)
		}(i, tok)
	}
	fmt.Println("Firing all borrows simultaneously...")
	close(start)
	wg.Wait()

	var issued, outOfStock, failures int
	var first *borrowResult
	for i, r := range results {
		switch {
		case r.Err != nil:
			failures++
			fmt.Printf("  [ERR ] err=%v\n", r.Err)
		case r.StatusCode == http.StatusCreated:
			issued++
			if first == nil {
				first = &results[i]
			}
			fmt.Printf("  [LOAN] loan=%s\n", r.LoanID)
		case r.StatusCode == http.StatusConflict:
			outOfStock++
			fmt.Printf("  [NONE] status=%d\n", r.StatusCode)
		default:
			failures++
			fmt.Printf("  [FAIL] status=%d unexpected response\n", r.StatusCode)
		}
	}

	after, err := availableCopies(serverAddr, bookID, tokens[0])
	if err != nil {
		log.Fatalf("read book: %v", err)
	}

	fmt.Printf("\n--- Borrow Summary ---\n")
	fmt.Printf("Issued       : %d\n", issued)
	fmt.Printf("Refused      : %d\n", outOfStock)
	fmt.Printf("Failures     : %d\n", failures)
	fmt.Printf("Shelf        : %d -> %d\n", before, after)

	ok := issued <= before && after == before-issued
	if !ok {
		fmt.Println("[BROKEN] copy counter does not match the loans issued")
	}

	if first != nil {
		fmt.Printf("\n--- Renewal Race on %s ---\n", first.LoanID)
		outcomes := make([]renewOutcome, 2)
		errs := make([]error, 2)
		start := make(chan struct{})
		for i := range outcomes {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				<-start
				outcomes[idx], errs[idx] = renew(serverAddr, first.LoanID, first.Token)
			}(i)
		}
		close(start)
		wg.Wait()

		renewed := 0
		for i, o := range outcomes {
			if errs[i] != nil {
				failures++
				fmt.Printf("  [ERR ] %v\n", errs[i])
				continue
			}
			if o.Success {
				renewed++
			}
			fmt.Printf("  success=%v message=%q\n", o.Success, o.Message)
		}
		if renewed == 0 {
			fmt.Println("[WARNING] neither renewal went through")
		}
	}

	if !ok || failures > 0 {
		os.Exit(1)
	}
}

func do(method, url, token string, body any) (int, []byte, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return 0, nil, err
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	return resp.StatusCode, raw, err
}

func availableCopies(serverAddr, bookID, token string) (int, error) {
	status, raw, err := do(http.MethodGet, fmt.Sprintf("%s/api/books/%s", serverAddr, bookID), token, nil)
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK {
		return 0, fmt.Errorf("status %d: %s", status, raw)
	}
	var book struct {
		AvailableCopies int `json:"available_copies"`
	}
	if err := json.Unmarshal(raw, &book); err != nil {
		return 0, fmt.Errorf("bad JSON: %s", raw)
	}
	return book.AvailableCopies, nil
}

// borrow sends POST /api/books/{bookID}/loans for the token's owner.
func borrow(serverAddr, bookID, token string) borrowResult {
	status, raw, err := do(http.MethodPost, fmt.Sprintf("%s/api/books/%s/loans", serverAddr, bookID), token, nil)
	if err != nil {
		return borrowResult{Token: token, Err: err}
	}
	res := borrowResult{Token: token, StatusCode: status}
	if status == http.StatusCreated {
		var loan struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(raw, &loan); err != nil {
			res.Err = fmt.Errorf("bad JSON: %s", raw)
		}
		res.LoanID = loan.ID
	}
	return res
}

func renew(serverAddr, loanID, token string) (renewOutcome, error) {
	var out renewOutcome
	status, raw, err := do(http.MethodPost, serverAddr+"/rpc/renew_book", token, map[string]any{"issued_book_id": loanID})
	if err != nil {
		return out, err
	}
	if status != http.StatusOK {
		return out, fmt.Errorf("status %d: %s", status, raw)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("bad JSON: %s", raw)
	}
	return out, nil
}
