// analyze — SSH honeypot database reporting CLI.
// Usage: analyze [--top N] [--database-url URL]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ── Aggregation helpers ──────────────────────────────────────────────────

type counter map[string]int

func (c counter) topN(n int) []kv {
	kvs := make([]kv, 0, len(c))
	for k, v := range c {
		kvs = append(kvs, kv{k, v})
	}
	sort.Slice(kvs, func(i, j int) bool { return kvs[i].V > kvs[j].V })
	if n > 0 && len(kvs) > n {
		kvs = kvs[:n]
	}
	return kvs
}

type kv struct {
	K string
	V int
}

type pairKey struct{ user, pass string }

// ── Formatting ───────────────────────────────────────────────────────────

func printTable(headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}
	sep := make([]string, len(headers))
	for i, w := range widths {
		sep[i] = strings.Repeat("─", w)
	}
	row2line := func(cells []string) string {
		parts := make([]string, len(headers))
		for i := range headers {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			parts[i] = fmt.Sprintf("%-*s", widths[i], cell)
		}
		return strings.Join(parts, "  ")
	}
	fmt.Println(row2line(headers))
	fmt.Println(strings.Join(sep, "  "))
	for _, row := range rows {
		fmt.Println(row2line(row))
	}
}

func section(title string) {
	fmt.Printf("\n%s\n%s\n", title, strings.Repeat("─", len(title)))
}

// ── Main ─────────────────────────────────────────────────────────────────

func main() {
	topN := flag.Int("top", 20, "Number of top entries to show")
	dbURL := flag.String("database-url", os.Getenv("HONEYPOT_DATABASE_URL"), "PostgreSQL connection string")
	flag.Parse()

	if *dbURL == "" {
		fmt.Fprintln(os.Stderr, "--database-url (or HONEYPOT_DATABASE_URL) is required")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, *dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connecting to database: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	now := time.Now().UTC()
	fmt.Printf("\n%s\n", strings.Repeat("═", 62))
	fmt.Printf("  SSH HONEYPOT REPORT  —  %s UTC\n", now.Format("2006-01-02 15:04"))
	fmt.Printf("%s\n", strings.Repeat("═", 62))

	if err := reportAuth(ctx, pool, *topN); err != nil {
		fmt.Fprintf(os.Stderr, "auth report: %v\n", err)
	}
	if err := reportCommands(ctx, pool, *topN); err != nil {
		fmt.Fprintf(os.Stderr, "command report: %v\n", err)
	}
	if err := reportUploads(ctx, pool, *topN); err != nil {
		fmt.Fprintf(os.Stderr, "upload report: %v\n", err)
	}
	if err := reportSessions(ctx, pool); err != nil {
		fmt.Fprintf(os.Stderr, "session report: %v\n", err)
	}

	fmt.Printf("\n%s\n\n", strings.Repeat("═", 62))
}

// ── Auth attempts ────────────────────────────────────────────────────────

func reportAuth(ctx context.Context, pool *pgxpool.Pool, topN int) error {
	rows, err := pool.Query(ctx, `SELECT ip::text, username, COALESCE(password, ''), timestamp FROM auth ORDER BY timestamp`)
	if err != nil {
		return err
	}
	defer rows.Close()

	ips := make(counter)
	users := make(counter)
	passes := make(counter)
	pairs := make(map[pairKey]int)
	var first, last time.Time
	total := 0

	for rows.Next() {
		var ip, username, password string
		var ts time.Time
		if err := rows.Scan(&ip, &username, &password, &ts); err != nil {
			return err
		}
		total++
		ips[ip]++
		users[username]++
		passes[password]++
		pairs[pairKey{username, password}]++
		if first.IsZero() || ts.Before(first) {
			first = ts
		}
		if ts.After(last) {
			last = ts
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if total == 0 {
		fmt.Println("\nNo authentication attempts logged yet.")
		return nil
	}

	section("Auth Attempts")
	fmt.Printf("Total attempts    : %d\n", total)
	fmt.Printf("First             : %s\n", first.Format(time.RFC3339))
	fmt.Printf("Last              : %s\n", last.Format(time.RFC3339))
	fmt.Printf("Unique IPs        : %d\n", len(ips))
	fmt.Printf("Unique usernames  : %d\n", len(users))
	fmt.Printf("Unique passwords  : %d\n", len(passes))

	section(fmt.Sprintf("Top %d Source IPs", topN))
	var tableRows [][]string
	for _, e := range ips.topN(topN) {
		tableRows = append(tableRows, []string{e.K, fmt.Sprint(e.V)})
	}
	printTable([]string{"IP", "Attempts"}, tableRows)

	section(fmt.Sprintf("Top %d Usernames", topN))
	tableRows = tableRows[:0]
	for _, e := range users.topN(topN) {
		tableRows = append(tableRows, []string{e.K, fmt.Sprint(e.V)})
	}
	printTable([]string{"Username", "Count"}, tableRows)

	section(fmt.Sprintf("Top %d Passwords", topN))
	tableRows = tableRows[:0]
	for _, e := range passes.topN(topN) {
		tableRows = append(tableRows, []string{e.K, fmt.Sprint(e.V)})
	}
	printTable([]string{"Password", "Count"}, tableRows)

	section(fmt.Sprintf("Top %d Credential Pairs", topN))
	type pairCount struct {
		user, pass string
		count      int
	}
	pairList := make([]pairCount, 0, len(pairs))
	for pk, cnt := range pairs {
		pairList = append(pairList, pairCount{pk.user, pk.pass, cnt})
	}
	sort.Slice(pairList, func(i, j int) bool { return pairList[i].count > pairList[j].count })
	if topN > 0 && len(pairList) > topN {
		pairList = pairList[:topN]
	}
	tableRows = tableRows[:0]
	for _, p := range pairList {
		tableRows = append(tableRows, []string{p.user, p.pass, fmt.Sprint(p.count)})
	}
	printTable([]string{"Username", "Password", "Count"}, tableRows)

	return nil
}

// ── Shell commands ───────────────────────────────────────────────────────

func reportCommands(ctx context.Context, pool *pgxpool.Pool, topN int) error {
	rows, err := pool.Query(ctx, `SELECT command FROM commands`)
	if err != nil {
		return err
	}
	defer rows.Close()

	cmdFreq := make(counter)
	total := 0
	for rows.Next() {
		var cmd string
		if err := rows.Scan(&cmd); err != nil {
			return err
		}
		total++
		fields := strings.Fields(cmd)
		if len(fields) > 0 {
			cmdFreq[fields[0]]++
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	section("Interactive Commands")
	fmt.Printf("Total commands : %d\n", total)
	if len(cmdFreq) == 0 {
		return nil
	}
	var tableRows [][]string
	for _, e := range cmdFreq.topN(topN) {
		tableRows = append(tableRows, []string{e.K, fmt.Sprint(e.V)})
	}
	printTable([]string{"Command", "Count"}, tableRows)
	return nil
}

// ── Uploaded files ───────────────────────────────────────────────────────

func reportUploads(ctx context.Context, pool *pgxpool.Pool, topN int) error {
	rows, err := pool.Query(ctx, `SELECT filename, file_size, file_hash, claimed_mime_type, detected_mime_type, format_mismatch FROM uploaded_files ORDER BY timestamp DESC LIMIT $1`, topN)
	if err != nil {
		return err
	}
	defer rows.Close()

	var tableRows [][]string
	mismatches := 0
	for rows.Next() {
		var filename, hash string
		var size int64
		var claimed, detected *string
		var mismatch bool
		if err := rows.Scan(&filename, &size, &hash, &claimed, &detected, &mismatch); err != nil {
			return err
		}
		if mismatch {
			mismatches++
		}
		tableRows = append(tableRows, []string{
			filename, fmt.Sprint(size), hash[:12], deref(claimed), deref(detected), fmt.Sprint(mismatch),
		})
	}
	if err := rows.Err(); err != nil {
		return err
	}

	section(fmt.Sprintf("Recent Uploads (top %d)", topN))
	if len(tableRows) == 0 {
		fmt.Println("No files uploaded yet.")
		return nil
	}
	fmt.Printf("Format mismatches in this sample: %d\n\n", mismatches)
	printTable([]string{"Filename", "Size", "Hash (12)", "Claimed", "Detected", "Mismatch"}, tableRows)
	return nil
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

// ── Sessions ─────────────────────────────────────────────────────────────

func reportSessions(ctx context.Context, pool *pgxpool.Pool) error {
	var total int64
	var avgSeconds float64
	err := pool.QueryRow(ctx, `SELECT COUNT(*), COALESCE(AVG(duration_seconds), 0) FROM sessions`).Scan(&total, &avgSeconds)
	if err != nil {
		return err
	}
	section("Sessions")
	fmt.Printf("Total sessions     : %d\n", total)
	fmt.Printf("Average duration   : %.1fs\n", avgSeconds)
	return nil
}
