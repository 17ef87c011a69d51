// Command inspect dumps the contents of a badger store as a table.
// Meant for local debugging: point it at a data directory and pick a
// prefix (msg:id:, conv:id: or user:id:).
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"chat-direct/repositories"

	"github.com/dgraph-io/badger/v4"
	"github.com/olekukonko/tablewriter"
)

func main() {
	dbPath := flag.String("db", "/tmp/chat-direct/badger", "Path to badger DB")
	prefix := flag.String("prefix", "msg:id:", "Prefix to scan")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Type", "Timestamp", "Entity ID", "State", "Detail"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()

			// Secondary indexes carry no value worth printing.
			if strings.HasPrefix(string(item.Key()), "idx:") {
				continue
			}

			err := item.Value(func(v []byte) error {
				row, ok := toRow(string(item.Key()), v)
				if !ok {
					fmt.Printf("Error decoding key %s\n", string(item.Key()))
					return nil
				}
				table.Append(row)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}

	table.Render()
}

func toRow(key string, val []byte) ([]string, bool) {
	switch {
	case strings.HasPrefix(key, "msg:id:"):
		message, err := repositories.DecodeMessage(val)
		if err != nil {
			return nil, false
		}
		detail := message.Content
		if len(detail) > 40 {
			detail = detail[:40] + "..."
		}
		return []string{
			key, "MSG",
			message.CreatedAt.Format("15:04:05"),
			shortID(message.ID.String()),
			string(message.State),
			fmt.Sprintf("%s (delivered=%t read=%t)", detail, message.Delivered, message.Read),
		}, true

	case strings.HasPrefix(key, "conv:id:"):
		conversation, err := repositories.DecodeConversation(val)
		if err != nil {
			return nil, false
		}
		return []string{
			key, "CONV",
			conversation.LastActivityAt.Format("15:04:05"),
			shortID(conversation.ID.String()),
			"",
			fmt.Sprintf("%s <-> %s", shortID(conversation.UserA.String()), shortID(conversation.UserB.String())),
		}, true

	case strings.HasPrefix(key, "user:id:"):
		user, err := repositories.DecodeUser(val)
		if err != nil {
			return nil, false
		}
		return []string{
			key, "USER",
			user.LastSeenAt.Format("15:04:05"),
			shortID(user.ID.String()),
			string(user.Status),
			user.Email,
		}, true

	default:
		return []string{key, "RAW", "", "", "", fmt.Sprintf("%d bytes", len(val))}, true
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true).
		WithValueLogFileSize(10 * 1024 * 1024)
	return badger.Open(opts)
}
