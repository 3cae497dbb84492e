// Package report renders the weekly insight digest email with Liquid
// templates and delivers it through AWS SES.
package report
