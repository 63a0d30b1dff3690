package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
)

func (a *App) Notifications(ctx context.Context) error {
	items, err := a.agent.Notifications(ctx)
	if err != nil {
		log.Println(err.Error())
		return err
	}
	for _, n := range items {
		fmt.Printf("#%d %s/%s: %s (backup %s)\n", n.ID, n.EntityType, n.EntityID, n.Message, n.BackupID)
	}
	if len(items) == 0 {
		fmt.Println("No unread notifications.")
	}
	return nil
}

func (a *App) MarkRead(ctx context.Context) error {
	s, err := GetSimpleText(a.reader, "Notification ID:", os.Stdout)
	if err != nil {
		log.Println(err.Error())
		return err
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		log.Println("invalid notification ID:", s)
		return err
	}
	if err := a.agent.MarkNotificationRead(ctx, id); err != nil {
		log.Println(err.Error())
		return err
	}
	fmt.Println("Marked read.")
	return nil
}
