package main

import (
	"fmt"
	"os"

	"drive/internal/client"
)

const usage = `usage: drive <command> [args]

commands:
  register <email> <password>   create an account
  upload   <path>               upload a file
  download <file-id>            download a file to the current directory
  delete   <file-id>            delete one of your files
  share    <file-id> public|private
  list                          list your files
  stats                         show storage usage and dedup savings

environment:
  DRIVE_URL      server base URL (default http://localhost:8080)
  DRIVE_USER_ID  your user id (required for everything except register)`

func main() {
	cmd, err := client.ParseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n\n%s\n", err, usage)
		os.Exit(1)
	}

	baseURL := os.Getenv("DRIVE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	userID := os.Getenv("DRIVE_USER_ID")

	if cmd.Name != "register" && cmd.Name != "download" && userID == "" {
		fmt.Fprintln(os.Stderr, "Error: DRIVE_USER_ID is not set")
		os.Exit(1)
	}

	c := client.New(baseURL, userID)
	if err := run(c, cmd); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(c *client.Client, cmd *client.Command) error {
	switch cmd.Name {
	case "register":
		user, err := c.Register(cmd.Args[0], cmd.Args[1])
		if err != nil {
			return err
		}
		fmt.Printf("registered %s\nuser id: %s\n", user.Email, user.ID)

	case "upload":
		info, err := c.Upload(cmd.Args[0])
		if err != nil {
			return err
		}
		fmt.Printf("uploaded %s (%d bytes)\nfile id: %s\n", info.Filename, info.SizeBytes, info.ID)
		if info.IsDeduplicated {
			fmt.Println("content already stored, no quota charged")
		}

	case "download":
		out, n, err := c.Download(cmd.Args[0])
		if err != nil {
			return err
		}
		fmt.Printf("downloaded %d bytes to %s\n", n, out)

	case "delete":
		if err := c.Delete(cmd.Args[0]); err != nil {
			return err
		}
		fmt.Println("deleted")

	case "share":
		public := cmd.Args[1] == "public"
		if err := c.Share(cmd.Args[0], public); err != nil {
			return err
		}
		fmt.Printf("file is now %s\n", cmd.Args[1])

	case "list":
		files, err := c.List()
		if err != nil {
			return err
		}
		if len(files) == 0 {
			fmt.Println("no files")
			return nil
		}
		for _, f := range files {
			visibility := "private"
			if f.IsPublic {
				visibility = "public"
			}
			fmt.Printf("%s  %-30s %10d bytes  %s  downloads: %d\n",
				f.ID, f.Filename, f.SizeBytes, visibility, f.DownloadCount)
		}

	case "stats":
		stats, err := c.Stats()
		if err != nil {
			return err
		}
		fmt.Printf("actual used:   %d bytes\n", stats.ActualUsedBytes)
		fmt.Printf("original size: %d bytes\n", stats.OriginalSizeBytes)
		fmt.Printf("saved:         %d bytes (%.2f%%)\n", stats.SavingsBytes, stats.SavingsPercentage)
	}

	return nil
}
