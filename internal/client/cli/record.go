package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
)

var validEntityTypes = map[string]bool{
	"sample":      true,
	"test_result": true,
	"parameter":   true,
}

func (a *App) promptEntityKey() (string, string, error) {
	et, err := GetSimpleText(a.reader, "Entity type (sample / test_result / parameter):", os.Stdout)
	if err != nil {
		return "", "", err
	}
	if !validEntityTypes[et] {
		return "", "", fmt.Errorf("unknown entity type: %s", et)
	}
	id, err := GetSimpleText(a.reader, "Entity ID:", os.Stdout)
	if err != nil {
		return "", "", err
	}
	if id == "" {
		return "", "", fmt.Errorf("entity ID is required")
	}
	return et, id, nil
}

// Record prompts for an entity key and a JSON payload, then stores the edit
// locally for the next sync round.
func (a *App) Record(ctx context.Context) error {
	et, id, err := a.promptEntityKey()
	if err != nil {
		log.Println(err.Error())
		return err
	}

	text, err := GetMultiline(a.reader, "Payload as JSON", os.Stdout)
	if err != nil {
		log.Println(err.Error())
		return err
	}
	if !json.Valid([]byte(text)) {
		err := fmt.Errorf("payload is not valid JSON")
		log.Println(err.Error())
		return err
	}

	if err := a.agent.RecordEdit(ctx, et, id, json.RawMessage(text)); err != nil {
		log.Println(err.Error())
		return err
	}
	fmt.Println("Recorded; change will be pushed on the next sync.")
	return nil
}

// Delete prompts for an entity key and marks the record deleted locally.
func (a *App) Delete(ctx context.Context) error {
	et, id, err := a.promptEntityKey()
	if err != nil {
		log.Println(err.Error())
		return err
	}
	if err := a.agent.Delete(ctx, et, id); err != nil {
		log.Println(err.Error())
		return err
	}
	fmt.Println("Marked deleted; tombstone will be pushed on the next sync.")
	return nil
}
