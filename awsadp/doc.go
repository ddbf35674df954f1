// Package awsadp provides AWS adapters for taskengine interfaces.
//
// SQSTaskQueue: implements taskengine.TaskQueue using AWS SQS, consumed either
// by a long-running worker (Start) or by a Lambda function (HandleSQSEvent)
//
// The queue works against ElasticMQ for local development.
package awsadp
