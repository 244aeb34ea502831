package main

import (
	"fmt"
	"os"

	"github.com/gridstore/core/internal/xlmeta"
)

func runObject(args []string) {
	if len(args) < 3 {
		fatal("usage: gridctl object <put|get|head|rm> <bucket> <key> [file]")
	}
	sub, bucket, key := args[0], args[1], args[2]
	rest := args[3:]

	_, _, rt := openRuntime()
	defer rt.Close()

	switch sub {
	case "put":
		if len(rest) < 1 {
			fatal("usage: gridctl object put <bucket> <key> <file>")
		}
		data, err := os.ReadFile(rest[0])
		if err != nil {
			fatal(fmt.Sprintf("read %s: %v", rest[0], err))
		}
		result, err := rt.Store.Put(bucket, key, data, xlmeta.ObjectMeta{ContentType: "application/octet-stream"})
		if err != nil {
			fatal(fmt.Sprintf("put: %v", err))
		}
		fmt.Printf("etag=%s size=%d\n", result.ETag, result.Size)

	case "get":
		data, rec, err := rt.Store.Get(bucket, key)
		if err != nil {
			fatal(fmt.Sprintf("get: %v", err))
		}
		if len(rest) > 0 {
			if err := os.WriteFile(rest[0], data, 0o644); err != nil {
				fatal(fmt.Sprintf("write %s: %v", rest[0], err))
			}
			fmt.Printf("wrote %d bytes to %s (etag=%s)\n", len(data), rest[0], rec.Meta.ETag)
			return
		}
		os.Stdout.Write(data)

	case "head":
		rec, err := rt.Store.Head(bucket, key)
		if err != nil {
			fatal(fmt.Sprintf("head: %v", err))
		}
		fmt.Printf("etag=%s size=%d content_type=%s\n", rec.Meta.ETag, rec.Stat.Size, rec.Meta.ContentType)

	case "rm":
		if err := rt.Store.Delete(bucket, key); err != nil {
			fatal(fmt.Sprintf("delete: %v", err))
		}
		fmt.Println("deleted")

	default:
		fatal("unknown object subcommand: " + sub)
	}
}
