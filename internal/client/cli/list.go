package cli

import (
	"context"
	"fmt"
	"log"
	"os"
)

func (a *App) List(ctx context.Context) error {
	et, err := GetSimpleText(a.reader, "Entity type (sample / test_result / parameter):", os.Stdout)
	if err != nil {
		log.Println(err.Error())
		return err
	}
	items, err := a.agent.List(ctx, et)
	if err != nil {
		log.Println(err.Error())
		return err
	}

	for _, item := range items {
		marker := ""
		if item.Dirty {
			marker = " *pending"
		}
		fmt.Printf("%s/%s token=%d%s\n", item.EntityType, item.EntityID, item.Token, marker)
	}
	if len(items) == 0 {
		fmt.Println("No records.")
	}
	return nil
}

func (a *App) Show(ctx context.Context) error {
	et, id, err := a.promptEntityKey()
	if err != nil {
		log.Println(err.Error())
		return err
	}
	rec, err := a.agent.Get(ctx, et, id)
	if err != nil {
		log.Println(err.Error())
		return err
	}
	fmt.Printf("%s/%s token=%d deleted=%v dirty=%v updated=%s\n",
		rec.EntityType, rec.EntityID, rec.Token, rec.Deleted, rec.Dirty,
		rec.UpdatedAt.Format("2006-01-02 15:04:05"))
	fmt.Println(string(rec.Payload))
	return nil
}

func (a *App) Sync(ctx context.Context) error {
	res, err := a.agent.Sync(ctx)
	if err != nil {
		log.Println(err.Error())
		return err
	}
	fmt.Printf("Sync done: %d applied, %d conflicts, %d rejected, %d pulled, watermark %d\n",
		len(res.Applied), len(res.Conflicts), len(res.Rejected), len(res.ServerChanges), res.NewWatermark)
	return nil
}
