package service

import "fmt"

// systemPrompt frames the model as a nutrition consultant and forbids
// markdown, since the reply is streamed into a plain-text view.
const systemPrompt = "You are a nutrition consultant who analyzes the user's symptoms, " +
	"first presents the nutrients they need and explains why, and then recommends specific products. " +
	"Your answer must follow the logical order given by the user. " +
	"Never use markdown or special symbols (such as #, *, or -); " +
	"compose the answer using only plain text and natural line breaks."

// buildUserPrompt renders the user turn from the validated request fields.
func buildUserPrompt(age int, gender, message string) string {
	return fmt.Sprintf(
		"A %d-year-old %s user is experiencing the following symptom: %q.\n\n"+
			"Generate the answer following the four steps below:\n\n"+
			"1: First list the kinds of vitamins/nutrients needed for the symptom.\n"+
			"2: Briefly explain why those nutrients are needed.\n"+
			"3: Recommend 2-3 products containing those nutrients in each of three tiers: low, medium, and high dosage.\n"+
			"4: Clearly state each product's brand, product name, main ingredients, and dosage/schedule.",
		age, gender, message,
	)
}
