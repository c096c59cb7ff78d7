package discord

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// fieldTag is the parsed "discord" tag of a command request or modal form field.
// The first bare element is the option or input name, for example
//
//	`discord:"probe,optional,description:Send a test payload"`
//	`discord:"modelo,label:MODELO,placeholder:Ingresa el modelo...,max:100"`
type fieldTag struct {
	Name        string
	Optional    bool
	Description string
	Choices     string
	Default     string
	Label       string
	Placeholder string
	MaxLength   int
	Paragraph   bool
}

func parseFieldTag(field reflect.StructField) (fieldTag, error) {
	tag := fieldTag{Name: strings.ToLower(field.Name)}
	for idx, part := range strings.Split(field.Tag.Get("discord"), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, hasValue := strings.Cut(part, ":")
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		switch {
		case key == "optional" && !hasValue:
			tag.Optional = true
		case key == "paragraph" && !hasValue:
			tag.Paragraph = true
		case !hasValue && idx == 0:
			tag.Name = key
		case key == "description":
			tag.Description = value
		case key == "choices":
			tag.Choices = value
		case key == "default":
			tag.Default = value
		case key == "label":
			tag.Label = value
		case key == "placeholder":
			tag.Placeholder = value
		case key == "max":
			n, err := strconv.Atoi(value)
			if err != nil {
				return fieldTag{}, fmt.Errorf("field %s: invalid max %q: %w", field.Name, value, err)
			}
			tag.MaxLength = n
		default:
			return fieldTag{}, fmt.Errorf("field %s: unknown tag element %q", field.Name, part)
		}
	}
	return tag, nil
}

func structType(v interface{}) (reflect.Type, error) {
	t := reflect.TypeOf(v)
	if t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%T is not a struct", v)
	}
	return t, nil
}

// parseChoices parses "val1|Label1;val2|Label2". A pair without a label uses its value.
func parseChoices(s string) []*discordgo.ApplicationCommandOptionChoice {
	var choices []*discordgo.ApplicationCommandOptionChoice
	for _, pair := range strings.Split(s, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		value, name, ok := strings.Cut(pair, "|")
		if !ok {
			name = value
		}
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{
			Name:  name,
			Value: value,
		})
	}
	return choices
}

// setDefaults fills zero fields of the struct pointed to by req from their "default" tag element.
func setDefaults(req interface{}) error {
	v := reflect.ValueOf(req)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("setDefaults: req is not a pointer to struct")
	}
	v = v.Elem()
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		fieldVal := v.Field(i)
		if !fieldVal.CanSet() || !fieldVal.IsZero() {
			continue
		}
		tag, err := parseFieldTag(t.Field(i))
		if err != nil {
			return err
		}
		if tag.Default == "" {
			continue
		}
		converted, err := convertType(tag.Default, fieldVal.Type())
		if err != nil {
			return fmt.Errorf("field %s: %w", t.Field(i).Name, err)
		}
		fieldVal.Set(converted)
	}

	return nil
}

func convertType(val string, t reflect.Type) (reflect.Value, error) {
	switch t.Kind() {
	case reflect.String:
		return reflect.ValueOf(val).Convert(t), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(i).Convert(t), nil
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(f).Convert(t), nil
	case reflect.Bool:
		b, err := strconv.ParseBool(val)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(b).Convert(t), nil
	default:
		return reflect.Value{}, fmt.Errorf("unsupported type for default conversion: %s", t.Kind())
	}
}

func optionType(k reflect.Kind) discordgo.ApplicationCommandOptionType {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return discordgo.ApplicationCommandOptionInteger
	case reflect.Float32, reflect.Float64:
		return discordgo.ApplicationCommandOptionNumber
	case reflect.Bool:
		return discordgo.ApplicationCommandOptionBoolean
	default:
		return discordgo.ApplicationCommandOptionString
	}
}

// structToCommandOptions generates slash command options from the fields of a request struct.
func structToCommandOptions(req Request) ([]*discordgo.ApplicationCommandOption, error) {
	t, err := structType(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}

	var options []*discordgo.ApplicationCommandOption
	for i := 0; i < t.NumField(); i++ {
		tag, err := parseFieldTag(t.Field(i))
		if err != nil {
			return nil, err
		}
		description := tag.Description
		if description == "" {
			description = "Auto-generated option for " + tag.Name
		}
		opt := &discordgo.ApplicationCommandOption{
			Type:        optionType(t.Field(i).Type.Kind()),
			Name:        tag.Name,
			Description: description,
			Required:    !tag.Optional,
		}
		if tag.Choices != "" {
			opt.Choices = parseChoices(tag.Choices)
		}
		options = append(options, opt)
	}

	return options, nil
}

// ModalFromStruct builds a modal with one text input per field of form. Inputs are
// required unless tagged optional; label, placeholder, max and paragraph shape the input.
// DecodeModal reads the submission back into the same struct.
func ModalFromStruct(customID, title string, form interface{}) (*discordgo.InteractionResponseData, error) {
	t, err := structType(form)
	if err != nil {
		return nil, fmt.Errorf("modal form: %w", err)
	}
	if t.NumField() > 5 {
		return nil, fmt.Errorf("modal form %s has %d fields, Discord allows 5", t.Name(), t.NumField())
	}

	modal := &discordgo.InteractionResponseData{CustomID: customID, Title: title}
	for i := 0; i < t.NumField(); i++ {
		tag, err := parseFieldTag(t.Field(i))
		if err != nil {
			return nil, err
		}
		label := tag.Label
		if label == "" {
			label = t.Field(i).Name
		}
		style := discordgo.TextInputShort
		if tag.Paragraph {
			style = discordgo.TextInputParagraph
		}
		modal.Components = append(modal.Components, discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.TextInput{
					CustomID:    tag.Name,
					Label:       label,
					Style:       style,
					Placeholder: tag.Placeholder,
					Required:    !tag.Optional,
					MaxLength:   tag.MaxLength,
				},
			},
		})
	}
	return modal, nil
}

// MustModal is ModalFromStruct for forms whose tags are fixed at compile time.
func MustModal(customID, title string, form interface{}) *discordgo.InteractionResponseData {
	modal, err := ModalFromStruct(customID, title, form)
	if err != nil {
		panic(err)
	}
	return modal
}
