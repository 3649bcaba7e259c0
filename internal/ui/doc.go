// Package ui renders download runs in the terminal.
//
// [Model] is a bubbletea program that monitors a run: it starts the run on a progress
// channel, keeps one line per in-flight transfer, drives a bar for the current batch with
// charmbracelet/bubbles/progress, and lists the most recent finished transfers. Pressing q
// cancels the run's context; in-flight transfers release their claims before the program
// exits.
//
// [StatusLabel] and the style helpers give the CLI tables and summaries a shared palette.
package ui
