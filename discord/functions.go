package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"github.com/mitchellh/mapstructure"
)

// Request is a blank interface for the command request definitions.
type Request interface{}

// BotFunctionI is the common interface for all slash commands.
type BotFunctionI interface {
	GetName() string
	GetDescription() string
	GetRequestPrototype() Request
	// GetDefaultPermissions returns the permission bits a member needs to see the
	// command, or nil for everyone.
	GetDefaultPermissions() *int64
	// HandleInteraction decodes the command options into the request struct, calls
	// the handler and replies with its response.
	HandleInteraction(ctx context.Context, ic *Interaction) error
}

// GenericBotFunction is a generic implementation of BotFunctionI.
type GenericBotFunction[T Request] struct {
	// Name is the command name.
	Name string
	// Description is shown in the Discord command picker.
	Description string
	// RequestPrototype is an instance of the request type (typically the zero value)
	// used for reflection to generate command options.
	RequestPrototype T
	// Permissions restricts the command to members holding these bits.
	Permissions *int64
	// Handler is the function to execute for the command. It may answer through
	// ic.Responder itself (for example to defer); the returned data is then sent as an edit.
	Handler func(ctx context.Context, ic *Interaction, req T) (*discordgo.InteractionResponseData, error)
}

func (bf *GenericBotFunction[T]) GetName() string {
	return bf.Name
}

func (bf *GenericBotFunction[T]) GetDescription() string {
	if bf.Description == "" {
		return "Auto-generated command for " + bf.Name
	}
	return bf.Description
}

func (bf *GenericBotFunction[T]) GetRequestPrototype() Request {
	return bf.RequestPrototype
}

func (bf *GenericBotFunction[T]) GetDefaultPermissions() *int64 {
	return bf.Permissions
}

// HandleInteraction processes the interaction by constructing a request of type T from the data
// and then invoking the handler. It decodes the options using mapstructure and then applies any defaults.
func (bf *GenericBotFunction[T]) HandleInteraction(ctx context.Context, ic *Interaction) error {
	data := ic.ApplicationCommandData()

	optsMap := make(map[string]interface{})
	for _, opt := range data.Options {
		optsMap[opt.Name] = opt.Value
	}

	var req T
	if err := decodeTagged(optsMap, &req); err != nil {
		return err
	}
	if err := setDefaults(&req); err != nil {
		return err
	}

	resp, err := bf.Handler(ctx, ic, req)
	if err != nil {
		return err
	}
	if resp == nil {
		return nil
	}
	return ic.Responder.Reply(resp)
}

// NewBotFunction is a generic constructor that creates a new BotFunctionI command handler.
// It instantiates a GenericBotFunction with a zero-value prototype of type T (your request struct).
// This prototype is later used with the mapstructure decoder to automatically map Discord interaction
// options into your custom request struct. The first element of the "discord" struct tag is the
// option name; the remaining elements control how the option is generated:
//
//   - optional:    Marks the field as not required (the command won't error if it's missing).
//   - description: Overrides the auto-generated option description with a custom text.
//   - choices:     Provides a semicolon-separated list of choices in the format "value|Label" for the option.
//   - default:     Specifies a default value to assign if the field remains unset after decoding.
func NewBotFunction[T Request](name, description string, handler func(ctx context.Context, ic *Interaction, req T) (*discordgo.InteractionResponseData, error)) *GenericBotFunction[T] {
	var reqPrototype T
	return &GenericBotFunction[T]{
		Name:             name,
		Description:      description,
		RequestPrototype: reqPrototype,
		Handler:          handler,
	}
}

// decodeTagged decodes a map into out, matching keys against the "discord" tag.
func decodeTagged(input map[string]interface{}, out interface{}) error {
	decoderConfig := mapstructure.DecoderConfig{
		TagName:          "discord",
		Result:           out,
		WeaklyTypedInput: true, // helps convert numbers and booleans automatically.
	}
	decoder, err := mapstructure.NewDecoder(&decoderConfig)
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}

// DecodeModal copies the text inputs of a submitted modal into out, a pointer to a
// struct whose fields carry the input custom IDs in their "discord" tag.
func DecodeModal(data discordgo.ModalSubmitInteractionData, out interface{}) error {
	return decodeTagged(ModalValues(data), out)
}

// ModalValues flattens the text inputs of a submitted modal into a map keyed by custom ID.
func ModalValues(data discordgo.ModalSubmitInteractionData) map[string]interface{} {
	values := make(map[string]interface{})
	for _, component := range data.Components {
		var inner []discordgo.MessageComponent
		switch row := component.(type) {
		case *discordgo.ActionsRow:
			inner = row.Components
		case discordgo.ActionsRow:
			inner = row.Components
		}
		for _, c := range inner {
			switch input := c.(type) {
			case *discordgo.TextInput:
				values[input.CustomID] = input.Value
			case discordgo.TextInput:
				values[input.CustomID] = input.Value
			}
		}
	}
	return values
}
